package sqlinline

const QSelectIntegrationToken = `--sql b344d773-df74-4641-950d-22a6200c8268
select token, updated_at
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 5269b2a4-5183-4e43-be57-75e35bf96bd3
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`

const QDeleteIntegrationToken = `--sql 26d42dd2-1d6d-4f50-837c-a47733ba6bc9
delete from integration_tokens
where provider = $1::text;
`
