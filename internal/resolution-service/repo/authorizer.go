package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// Membership resolve o conjunto de resolvedores autorizados pelo método da aposta:
// SELF -> criador, ASSIGNED_RESOLVERS -> bet_resolvers,
// PARTICIPANT_VOTE -> membros ativos do grupo (ou participantes, se a aposta não tem grupo).
type Membership struct {
	db *sql.DB
}

func NewMembership(db *sql.DB) *Membership { return &Membership{db: db} }

func (m *Membership) Resolvers(ctx context.Context, bet model.Bet) ([]string, error) {
	switch bet.Method {
	case model.MethodSelf:
		return []string{bet.CreatorID}, nil
	case model.MethodAssignedResolvers:
		return m.list(ctx, `SELECT user_id FROM bet_resolvers WHERE bet_id=$1 ORDER BY user_id`, bet.ID)
	case model.MethodParticipantVote:
		if bet.GroupID != "" {
			return m.list(ctx, `
				SELECT user_id FROM group_members
				WHERE group_id=$1 AND status='ACTIVE' ORDER BY user_id`, bet.GroupID)
		}
		return m.list(ctx, `SELECT user_id FROM bet_participations WHERE bet_id=$1 ORDER BY user_id`, bet.ID)
	}
	return nil, nil
}

func (m *Membership) IsAuthorizedResolver(ctx context.Context, bet model.Bet, userID string) (bool, error) {
	var q string
	var arg string
	switch bet.Method {
	case model.MethodSelf:
		return userID == bet.CreatorID, nil
	case model.MethodAssignedResolvers:
		q, arg = `SELECT EXISTS(SELECT 1 FROM bet_resolvers WHERE bet_id=$1 AND user_id=$2)`, bet.ID
	case model.MethodParticipantVote:
		if bet.GroupID != "" {
			q, arg = `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2 AND status='ACTIVE')`, bet.GroupID
		} else {
			q, arg = `SELECT EXISTS(SELECT 1 FROM bet_participations WHERE bet_id=$1 AND user_id=$2)`, bet.ID
		}
	default:
		return false, nil
	}
	var ok bool
	if err := m.db.QueryRowContext(ctx, q, arg, userID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (m *Membership) list(ctx context.Context, q, arg string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
