package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestBaseErrorMatching(t *testing.T) {
	sentinel := NotFound("Wallet not found", nil)

	wrapped := fmt.Errorf("claim: %w", sentinel)
	require.ErrorIs(t, wrapped, sentinel)
	require.True(t, IsStatus(wrapped, StatusNotFound))
	require.False(t, IsStatus(wrapped, StatusBadRequest))

	require.NotErrorIs(t, NotFound("Flyer not found", nil), sentinel)
	require.NotErrorIs(t, BadRequest("Wallet not found", nil), sentinel)
}

func TestBaseErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("Internal server error", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, "[INTERNAL] Internal server error: connection reset", err.Error())

	be, ok := As(err)
	require.True(t, ok)
	require.Equal(t, http.StatusInternalServerError, be.Code.HTTPStatus())
}

func TestJSONEnvelope(t *testing.T) {
	be, ok := As(BadRequest("Amount must be positive", nil, WithDetails(Detail{Field: "amount", Message: "must be > 0"})))
	require.True(t, ok)

	body := be.JSON()
	require.Equal(t, false, body["success"])
	require.Equal(t, "Amount must be positive", body["message"])
	inner := body["error"].(map[string]any)
	require.Equal(t, StatusBadRequest, inner["code"])
	require.Len(t, inner["details"], 1)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusBadRequest:         http.StatusBadRequest,
		StatusUnauthorized:       http.StatusUnauthorized,
		StatusForbidden:          http.StatusForbidden,
		StatusNotFound:           http.StatusNotFound,
		StatusConflict:           http.StatusConflict,
		StatusServiceUnavailable: http.StatusServiceUnavailable,
		StatusInternal:           http.StatusInternalServerError,
		StatusUnknown:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code)
	}
}

func TestToGRPCError(t *testing.T) {
	st, ok := status.FromError(ToGRPCError(Conflict("You have already claimed this coupon", nil)))
	require.True(t, ok)
	require.Equal(t, codes.AlreadyExists, st.Code())
	require.Equal(t, "You have already claimed this coupon", st.Message())

	st, ok = status.FromError(ToGRPCError(errors.New("boom")))
	require.True(t, ok)
	require.Equal(t, codes.Internal, st.Code())
}
