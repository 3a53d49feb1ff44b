package sqlinline

const QSelectUserIDByEmail = `--sql 8958c9c7-cc9f-4c7c-beb6-ebfee28f9f53
select id
from users
where lower(email) = lower($1::text)
limit 1;
`

const QSelectUserRole = `--sql ed70b89b-afa0-4248-bb78-df2dc6029835
select role
from users
where id = $1::uuid
limit 1;
`

const QSetUserRole = `--sql 526b82cf-f0e5-45b9-954c-4cf4c10cc49e
update users
set role = $2::text,
    updated_at = now()
where id = $1::uuid
returning id, email, role;
`
