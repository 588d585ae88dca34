package sqlinline

const QInsertNotification = `--sql 9724a30e-0192-4882-b2cc-039ffd9f8d92
insert into notifications(user_id, type, message, metadata)
values ($1::text, $2::text, $3::text, $4::jsonb)
returning id::text, created_at;
`

const QListNotifications = `--sql aae0c01d-ed3d-4902-8837-d866057249b4
select id::text, user_id, type, message, metadata, read, created_at
from notifications
where user_id = $1::text
  and (not $2::boolean or read = false)
order by created_at desc
limit $3::int;
`

const QMarkNotificationRead = `--sql 748bb8ae-1655-4138-9f42-b254640e9f8f
update notifications
set read = true
where id = $1::uuid
  and user_id = $2::text;
`
