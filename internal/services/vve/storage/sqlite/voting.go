package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/voting"
)

const proposalColumns = `id, association_id, title, body, method, quorum_percent, majority, opens_at, closes_at,
    status, outcome, result_json, created_by, created_at, updated_at`

// PutProposal upserts one proposal. A frozen tally is kept as JSON.
func (s *Store) PutProposal(ctx context.Context, proposal voting.Proposal) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	var result any
	if proposal.Result != nil {
		raw, err := json.Marshal(proposal.Result)
		if err != nil {
			return fmt.Errorf("encode proposal result: %w", err)
		}
		result = string(raw)
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO proposals (`+proposalColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    body = excluded.body,
    method = excluded.method,
    quorum_percent = excluded.quorum_percent,
    majority = excluded.majority,
    opens_at = excluded.opens_at,
    closes_at = excluded.closes_at,
    status = excluded.status,
    outcome = excluded.outcome,
    result_json = excluded.result_json,
    updated_at = excluded.updated_at
`, proposal.ID, proposal.AssociationID, proposal.Title, proposal.Body, proposal.Method, proposal.QuorumPercent,
		proposal.Majority, optionalMillis(proposal.OpensAt), optionalMillis(proposal.ClosesAt), proposal.Status,
		proposal.Outcome, result, proposal.CreatedBy, toMillis(proposal.CreatedAt), toMillis(proposal.UpdatedAt))
	return mapWriteError(err, "put proposal")
}

// GetProposal loads one proposal.
func (s *Store) GetProposal(ctx context.Context, associationID, proposalID string) (voting.Proposal, error) {
	if err := s.ready(ctx); err != nil {
		return voting.Proposal{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE association_id = ? AND id = ?`,
		strings.TrimSpace(associationID), strings.TrimSpace(proposalID))
	proposal, err := scanProposal(row.Scan)
	if err != nil {
		return voting.Proposal{}, mapReadError(err, "get proposal")
	}
	return proposal, nil
}

// ListProposals lists proposals newest first.
func (s *Store) ListProposals(ctx context.Context, associationID string) ([]voting.Proposal, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+proposalColumns+` FROM proposals
WHERE association_id = ?
ORDER BY created_at DESC, id DESC
`, strings.TrimSpace(associationID))
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return collect(rows, scanProposal, "proposal")
}

// PutVote stores a member's vote, replacing an earlier one.
func (s *Store) PutVote(ctx context.Context, vote voting.Vote) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO votes (proposal_id, member_id, choice, weight, cast_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(proposal_id, member_id) DO UPDATE SET
    choice = excluded.choice,
    weight = excluded.weight,
    cast_at = excluded.cast_at
`, vote.ProposalID, vote.MemberID, vote.Choice, vote.Weight.String(), toMillis(vote.CastAt))
	return mapWriteError(err, "put vote")
}

// ListVotes lists the votes on one proposal.
func (s *Store) ListVotes(ctx context.Context, proposalID string) ([]voting.Vote, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT proposal_id, member_id, choice, weight, cast_at FROM votes
WHERE proposal_id = ?
ORDER BY cast_at, member_id
`, strings.TrimSpace(proposalID))
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return collect(rows, func(scan func(dest ...any) error) (voting.Vote, error) {
		var (
			vote   voting.Vote
			choice string
			weight string
			castAt int64
		)
		if err := scan(&vote.ProposalID, &vote.MemberID, &choice, &weight, &castAt); err != nil {
			return voting.Vote{}, err
		}
		parsed, err := parseAmount(weight, "vote weight")
		if err != nil {
			return voting.Vote{}, err
		}
		vote.Choice = voting.Choice(choice)
		vote.Weight = parsed
		vote.CastAt = fromMillis(castAt)
		return vote, nil
	}, "vote")
}

func scanProposal(scan func(dest ...any) error) (voting.Proposal, error) {
	var (
		proposal  voting.Proposal
		method    string
		majority  string
		opensAt   sql.NullInt64
		closesAt  sql.NullInt64
		status    string
		outcome   string
		result    sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := scan(&proposal.ID, &proposal.AssociationID, &proposal.Title, &proposal.Body, &method,
		&proposal.QuorumPercent, &majority, &opensAt, &closesAt, &status, &outcome, &result,
		&proposal.CreatedBy, &createdAt, &updatedAt); err != nil {
		return voting.Proposal{}, err
	}
	if result.Valid && result.String != "" {
		var tally voting.Tally
		if err := json.Unmarshal([]byte(result.String), &tally); err != nil {
			return voting.Proposal{}, fmt.Errorf("decode proposal result: %w", err)
		}
		proposal.Result = &tally
	}
	proposal.Method = voting.Method(method)
	proposal.Majority = voting.Majority(majority)
	proposal.OpensAt = timeFromNull(opensAt)
	proposal.ClosesAt = timeFromNull(closesAt)
	proposal.Status = voting.Status(status)
	proposal.Outcome = voting.Outcome(outcome)
	proposal.CreatedAt = fromMillis(createdAt)
	proposal.UpdatedAt = fromMillis(updatedAt)
	return proposal, nil
}
