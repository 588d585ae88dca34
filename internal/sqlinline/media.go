package sqlinline

const QInsertMedia = `--sql e058efc7-5b95-412c-bdc5-c625fbefc6e4
insert into generated_media(
  id,
  user_id,
  job_id,
  media_kind,
  prompt,
  prediction_id,
  source_url,
  bucket,
  storage_path,
  public_url,
  content_type,
  bytes,
  expires_at,
  created_at
) values (
  $1::uuid,
  $2::text,
  $3::uuid,
  $4::text,
  $5::text,
  $6::text,
  $7::text,
  $8::text,
  $9::text,
  $10::text,
  $11::text,
  $12::bigint,
  $13::timestamptz,
  $14::timestamptz
)
on conflict (job_id, source_url) do nothing
returning id::text;
`

const QSelectMediaByID = `--sql 0ce5c9df-93b2-45e3-81ee-5d0b2cd53c3e
select id::text, user_id, job_id::text, media_kind, prompt, prediction_id, source_url,
       bucket, storage_path, public_url, content_type, bytes, expires_at, created_at
from generated_media
where id = $1::uuid
  and user_id = $2::text
  and media_kind = $3::text
limit 1;
`

const QListMediaByUser = `--sql bf736201-6c7e-433f-bac5-62d0d8bcf643
select id::text, user_id, job_id::text, media_kind, prompt, prediction_id, source_url,
       bucket, storage_path, public_url, content_type, bytes, expires_at, created_at
from generated_media
where user_id = $1::text
  and ($2::text = '' or media_kind = $2::text)
  and expires_at > now()
order by created_at desc
limit $3::int offset $4::int;
`

const QListMediaByJob = `--sql c3d5dd36-287c-4c72-9f61-338a4710e3d9
select id::text, user_id, job_id::text, media_kind, prompt, prediction_id, source_url,
       bucket, storage_path, public_url, content_type, bytes, expires_at, created_at
from generated_media
where job_id = $1::uuid
order by created_at asc;
`

const QDeleteMediaForUser = `--sql 1aec01ad-19b5-439b-bdb4-f06d965149ef
delete from generated_media
where id = $1::uuid
  and user_id = $2::text
  and media_kind = $3::text;
`

const QListExpiredMedia = `--sql 56e3fd2c-96cc-4589-b23c-c01508c90db6
select id::text, user_id, job_id::text, media_kind, prompt, prediction_id, source_url,
       bucket, storage_path, public_url, content_type, bytes, expires_at, created_at
from generated_media
where expires_at <= $1::timestamptz
order by expires_at asc
limit $2::int;
`

const QDeleteMediaByID = `--sql 6a5242de-52f1-430c-a230-561c537046aa
delete from generated_media
where id = $1::uuid;
`
