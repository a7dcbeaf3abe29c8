// Package sqlinline holds the SQL text executed through infra.SQLRunner.
// Every query starts with a --sql marker line so individual statements can be
// traced in logs without printing query bodies.
package sqlinline

const QJobsEnsureSchema = `--sql 6d0abb78-280d-42bf-8a82-11a244163267
create table if not exists pipeline_jobs (
    job_id        text primary key,
    preset_id     text not null,
    user_id       text not null default '',
    status        text not null,
    quality_level text not null default '',
    inputs        jsonb not null default '{}'::jsonb,
    outputs       jsonb not null default '{}'::jsonb,
    output_url    text not null default '',
    progress      integer not null default 0,
    error         text not null default '',
    error_code    text not null default '',
    remediation   jsonb not null default '[]'::jsonb,
    created_at    timestamptz not null,
    started_at    timestamptz,
    finished_at   timestamptz
);
create index if not exists pipeline_jobs_created_at_idx on pipeline_jobs (created_at desc);
create index if not exists pipeline_jobs_status_idx on pipeline_jobs (status);
`

const QJobsInsert = `--sql 65bb1b04-65bd-4228-a8f3-fb704471bd31
insert into pipeline_jobs (
    job_id, preset_id, user_id, status, quality_level,
    inputs, outputs, output_url, progress,
    error, error_code, remediation,
    created_at, started_at, finished_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
on conflict (job_id) do update set
    status        = excluded.status,
    quality_level = excluded.quality_level,
    inputs        = excluded.inputs,
    outputs       = excluded.outputs,
    output_url    = excluded.output_url,
    progress      = excluded.progress,
    error         = excluded.error,
    error_code    = excluded.error_code,
    remediation   = excluded.remediation,
    started_at    = coalesce(pipeline_jobs.started_at, excluded.started_at),
    finished_at   = coalesce(pipeline_jobs.finished_at, excluded.finished_at);
`

const QJobsGet = `--sql 2c7a2a16-ceee-4dbd-bfd6-0b3764a6e3a3
select job_id, preset_id, user_id, status, quality_level,
       inputs, outputs, output_url, progress,
       error, error_code, remediation,
       created_at, started_at, finished_at
from pipeline_jobs
where job_id = $1;
`

const QJobsUpdate = `--sql 6e58e65d-cce8-4e29-9a24-e83549636a51
update pipeline_jobs set
    status        = coalesce($2, status),
    progress      = coalesce($3, progress),
    error         = coalesce($4, error),
    error_code    = coalesce($5, error_code),
    remediation   = coalesce($6, remediation),
    outputs       = coalesce($7, outputs),
    output_url    = coalesce($8, output_url),
    started_at    = case when started_at is null and $2 = 'running' then now() else started_at end,
    finished_at   = case when finished_at is null and $2 in ('completed','failed','cancelled') then now() else finished_at end
where job_id = $1
  and status not in ('completed','failed','cancelled');
`

const QJobsList = `--sql 55cb6586-fa7e-43ba-a808-fbb12451cb24
select job_id, preset_id, user_id, status, quality_level,
       inputs, outputs, output_url, progress,
       error, error_code, remediation,
       created_at, started_at, finished_at
from pipeline_jobs
where ($1 = '' or status = $1)
  and ($2 = '' or preset_id = $2)
order by created_at desc
limit $3;
`
