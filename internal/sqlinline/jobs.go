package sqlinline

const QInsertJob = `--sql 851e9ce0-94f1-48e6-8717-2f9672dbd871
insert into generation_jobs(
  id,
  user_id,
  job_type,
  kind,
  status,
  prompt,
  input_parameters
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  'pending',
  $5::text,
  $6::jsonb
)
returning created_at, updated_at;
`

const QSelectJobByID = `--sql ee497573-452f-44c6-b659-a5bb2243f739
select
  id::text, user_id, job_type, kind, status, prompt, input_parameters,
  coalesce(provider_reference, ''), result_data, coalesce(output_url, ''), coalesce(error_message, ''),
  attempts, claimed_at, created_at, updated_at, started_at, completed_at, processing_time_seconds
from generation_jobs
where id = $1::uuid
limit 1;
`

const QListJobsByUser = `--sql f10bc782-9d27-4b2d-b3e3-e481786e1cf2
select
  id::text, user_id, job_type, kind, status, prompt, input_parameters,
  coalesce(provider_reference, ''), result_data, coalesce(output_url, ''), coalesce(error_message, ''),
  attempts, claimed_at, created_at, updated_at, started_at, completed_at, processing_time_seconds
from generation_jobs
where user_id = $1::text
  and ($2::text = '' or id::text = $2::text)
  and ($3::text = '' or status = $3::text)
order by created_at desc
limit $4::int;
`

const QListActiveJobsByUser = `--sql dfc93017-88e3-4403-b6f5-eef77467a752
select
  id::text, user_id, job_type, kind, status, prompt, input_parameters,
  coalesce(provider_reference, ''), result_data, coalesce(output_url, ''), coalesce(error_message, ''),
  attempts, claimed_at, created_at, updated_at, started_at, completed_at, processing_time_seconds
from generation_jobs
where user_id = $1::text
  and status in ('pending', 'processing')
order by created_at asc;
`

const QLockUserAdmission = `--sql e3f9791f-36ff-49b6-a710-01e18ff81db2
select pg_advisory_xact_lock(hashtext('generation_jobs:' || $1::text));
`

const QClaimPendingJob = `--sql 5c562e06-cb90-487c-a3d7-b146d2b5dbc0
with next_job as (
    select id
    from generation_jobs
    where status = 'pending'
      and (claimed_at is null or claimed_at < now() - make_interval(secs => $1::double precision))
    order by created_at asc
    for update skip locked
    limit 1
)
update generation_jobs g
set claimed_at = now(), attempts = g.attempts + 1, updated_at = now()
from next_job
where g.id = next_job.id
returning
  g.id::text, g.user_id, g.job_type, g.kind, g.status, g.prompt, g.input_parameters,
  coalesce(g.provider_reference, ''), g.result_data, coalesce(g.output_url, ''), coalesce(g.error_message, ''),
  g.attempts, g.claimed_at, g.created_at, g.updated_at, g.started_at, g.completed_at, g.processing_time_seconds;
`

const QClaimJobByID = `--sql 4976b50d-a076-4335-b2b2-ba969960dfc0
update generation_jobs
set claimed_at = now(), attempts = attempts + 1, updated_at = now()
where id = $1::uuid
  and status = 'pending'
  and (claimed_at is null or claimed_at < now() - make_interval(secs => $2::double precision))
returning
  id::text, user_id, job_type, kind, status, prompt, input_parameters,
  coalesce(provider_reference, ''), result_data, coalesce(output_url, ''), coalesce(error_message, ''),
  attempts, claimed_at, created_at, updated_at, started_at, completed_at, processing_time_seconds;
`

const QMarkJobProcessing = `--sql 77dd4b30-76e6-42bf-b4d9-7843e51c7669
update generation_jobs
set status = 'processing',
    provider_reference = $2::text,
    started_at = coalesce(started_at, now()),
    updated_at = now()
where id = $1::uuid
  and status = 'pending';
`

const QCompleteJob = `--sql ada2c02d-f525-4108-a550-da0f73b36e38
update generation_jobs
set status = 'completed',
    result_data = $2::jsonb,
    output_url = $3::text,
    processing_time_seconds = $4::double precision,
    error_message = null,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'processing');
`

const QFailJob = `--sql 210f0271-6b07-42e9-884d-70aa3e7f39f3
update generation_jobs
set status = 'failed',
    error_message = $2::text,
    processing_time_seconds = extract(epoch from now() - created_at),
    completed_at = now(),
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'processing');
`

const QListStaleJobs = `--sql 199f6c6b-49b4-42b5-8d0d-a25bead9839b
select
  id::text, user_id, job_type, kind, status, prompt, input_parameters,
  coalesce(provider_reference, ''), result_data, coalesce(output_url, ''), coalesce(error_message, ''),
  attempts, claimed_at, created_at, updated_at, started_at, completed_at, processing_time_seconds
from generation_jobs
where status = 'processing'
  and coalesce(started_at, updated_at) < now() - make_interval(secs => $1::double precision)
order by coalesce(started_at, updated_at) asc
limit $2::int;
`

const QNotifyJobQueued = `--sql 95c4112a-eabc-4ba1-9513-bfce31d3eddd
select pg_notify('job_queue', $1::text);
`
