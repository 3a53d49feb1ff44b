package sqlinline

const QSelectCreditBalance = `--sql 1fd8092f-04d0-483c-91fa-0f16a9a114cc
select credits
from users
where id = $1::uuid
limit 1;
`

// QDebitOneCredit applies the balance guard and the decrement in one statement.
// No row is returned when the balance is already below one.
const QDebitOneCredit = `--sql 1d7d7dfe-16ab-4b2d-ad4c-211b9a5daa6e
update users
set credits = credits - 1,
    updated_at = now()
where id = $1::uuid
  and credits >= 1
returning credits;
`

const QSetCreditBalance = `--sql 10188369-c971-485f-ad61-2ddaf784b7de
update users
set credits = greatest($2::int, 0),
    updated_at = now()
where id = $1::uuid
returning id, email, credits;
`

const QGrantCredits = `--sql 16e7d6bf-45ed-4ebc-bdea-f9c6c5cf4de9
update users
set credits = greatest(credits + $2::int, 0),
    updated_at = now()
where id = $1::uuid
returning id, email, credits;
`
