package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// CreditLedger aplica deltas de saldo dentro da transação do chamador.
// Idempotente por (wallet_id, external_ref): reaplicar a mesma referência não altera o saldo.
type CreditLedger struct{}

func NewCreditLedger() *CreditLedger { return &CreditLedger{} }

// ApplyDelta credita (ou debita, se negativo) o usuário e retorna o novo saldo.
// applied=false indica que a referência já tinha sido lançada.
func (c *CreditLedger) ApplyDelta(ctx context.Context, tx *sql.Tx, userID string, amount int64, reason, externalRef string) (newBalance int64, applied bool, err error) {
	// garante a carteira (usuário pode nunca ter movimentado créditos)
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallets(id, user_id, balance_cents, version) VALUES($1,$2,0,1) ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID); err != nil {
		return 0, false, err
	}

	// lock pessimista na linha da carteira
	var walletID string
	if err = tx.QueryRowContext(ctx,
		`SELECT id, balance_cents FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&walletID, &newBalance); err != nil {
		return 0, false, err
	}

	op := "CREDIT"
	if amount < 0 {
		op = "DEBIT"
	}
	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description, external_ref)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (wallet_id, external_ref) DO NOTHING
		RETURNING id`, walletID, op, amount, reason, externalRef).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return newBalance, false, nil // já lançado
	}
	if err != nil {
		return 0, false, err
	}

	if amount == 0 {
		return newBalance, true, nil
	}
	if err = tx.QueryRowContext(ctx,
		`UPDATE wallets SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2 RETURNING balance_cents`,
		amount, walletID).Scan(&newBalance); err != nil {
		return 0, false, err
	}
	return newBalance, true, nil
}
