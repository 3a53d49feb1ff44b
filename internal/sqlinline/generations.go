package sqlinline

const QInsertGeneration = `--sql 1ea1585d-4572-4b92-a15e-d435d57970e6
insert into generations (id, user_id, provider_job_id, status, output_urls, error_message, created_at)
values (gen_random_uuid(), $1::uuid, $2::text, $3::text, coalesce($4::jsonb, '[]'::jsonb), nullif($5::text, ''), now())
on conflict (provider_job_id) do nothing;
`

const QSelectRecentGenerations = `--sql 92942e6f-a0b3-49be-8664-9fc7ebaab457
select provider_job_id, user_id, status, output_urls, coalesce(error_message, ''), created_at
from generations
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`
