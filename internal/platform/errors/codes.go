// Package errors provides coded domain errors shared by every vvebeheer service.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Auth errors
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodeInvalidEmail       Code = "INVALID_EMAIL"

	// Association errors
	CodeAssociationNameEmpty Code = "ASSOCIATION_NAME_EMPTY"
	CodeAssociationSlugTaken Code = "ASSOCIATION_SLUG_TAKEN"
	CodeInvalidRole          Code = "INVALID_ROLE"
	CodeLastAdmin            Code = "LAST_ADMIN"

	// Member errors
	CodeMemberNameEmpty    Code = "MEMBER_NAME_EMPTY"
	CodeMemberInvalidShare Code = "MEMBER_INVALID_SHARE"
	CodeMemberUnitTaken    Code = "MEMBER_UNIT_TAKEN"
	CodeInvalidIBAN        Code = "INVALID_IBAN"
	CodeIBANTaken          Code = "IBAN_TAKEN"

	// Contribution errors
	CodeInvalidPeriod Code = "INVALID_PERIOD"

	// Banking errors
	CodeImportProfileUnknown  Code = "IMPORT_PROFILE_UNKNOWN"
	CodeImportMalformed       Code = "IMPORT_MALFORMED"
	CodeTransactionState      Code = "TRANSACTION_STATE"
	CodeCategorizationInvalid Code = "CATEGORIZATION_INVALID"

	// Ledger errors
	CodeLedgerUnbalanced     Code = "LEDGER_UNBALANCED"
	CodeLedgerInvalidLine    Code = "LEDGER_INVALID_LINE"
	CodeLedgerUnknownAccount Code = "LEDGER_UNKNOWN_ACCOUNT"
	CodeLedgerAlreadyReverse Code = "LEDGER_ALREADY_REVERSED"
	CodeLedgerSystemAccount  Code = "LEDGER_SYSTEM_ACCOUNT"

	// Voting errors
	CodeProposalInvalid   Code = "PROPOSAL_INVALID"
	CodeProposalNotOpen   Code = "PROPOSAL_NOT_OPEN"
	CodeProposalStatus    Code = "PROPOSAL_STATUS"
	CodeVoterNotMember    Code = "VOTER_NOT_MEMBER"
	CodeVoteChoiceInvalid Code = "VOTE_CHOICE_INVALID"

	// Invite errors
	CodeInviteInvalid Code = "INVITE_INVALID"
	CodeInviteExpired Code = "INVITE_EXPIRED"
	CodeInviteUsed    Code = "INVITE_USED"
	CodeInviteRevoked Code = "INVITE_REVOKED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"
	CodeInvalid  Code = "INVALID_ARGUMENT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalid,
		CodeInvalidEmail,
		CodeWeakPassword,
		CodeAssociationNameEmpty,
		CodeInvalidRole,
		CodeMemberNameEmpty,
		CodeMemberInvalidShare,
		CodeInvalidIBAN,
		CodeInvalidPeriod,
		CodeImportProfileUnknown,
		CodeImportMalformed,
		CodeCategorizationInvalid,
		CodeLedgerUnbalanced,
		CodeLedgerInvalidLine,
		CodeLedgerUnknownAccount,
		CodeProposalInvalid,
		CodeVoteChoiceInvalid,
		CodeInviteInvalid:
		return codes.InvalidArgument

	case CodeLastAdmin,
		CodeTransactionState,
		CodeLedgerAlreadyReverse,
		CodeLedgerSystemAccount,
		CodeProposalNotOpen,
		CodeProposalStatus,
		CodeInviteExpired,
		CodeInviteUsed,
		CodeInviteRevoked:
		return codes.FailedPrecondition

	case CodeUnauthenticated, CodeInvalidCredentials, CodeTokenExpired:
		return codes.Unauthenticated

	case CodePermissionDenied, CodeVoterNotMember:
		return codes.PermissionDenied

	case CodeNotFound:
		return codes.NotFound

	case CodeConflict, CodeAssociationSlugTaken, CodeMemberUnitTaken, CodeIBANTaken:
		return codes.AlreadyExists

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes through their gRPC class.
func (c Code) HTTPStatus() int {
	return HTTPStatusFromGRPC(c.GRPCCode())
}

// HTTPStatusFromGRPC maps gRPC status codes to HTTP status codes.
func HTTPStatusFromGRPC(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
