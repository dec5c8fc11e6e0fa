// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package pgerror

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/stretchr/testify/require"
)

func TestSeverity(t *testing.T) {
	testCases := []struct {
		err              error
		expectedSeverity Severity
	}{
		{WithSeverity(fmt.Errorf("notice me"), SeverityTransaction), SeverityTransaction},
		{WithSeverity(WithSeverity(fmt.Errorf("notice me"), SeverityStatement), SeveritySession), SeveritySession},
		{WithSeverity(WithCandidateCode(fmt.Errorf("coded"), pgcode.TransactionRollback), SeverityStatement), SeverityStatement},
		{New(pgcode.ReadOnlySQLTransaction, "read only"), SeverityStatement},
		{New(pgcode.SerializationFailure, "retry"), SeverityTransaction},
		{New(pgcode.InvalidAuthorizationSpecification, "refused"), SeveritySession},
		{New(pgcode.ConnectionDoesNotExist, "gone"), SeveritySession},
		{New(pgcode.AdminShutdown, "shutdown"), SeverityFatal},
		{New(pgcode.Internal, "oops"), SeveritySession},
		{New(pgcode.Uncategorized, "i am an error"), SeverityUnclassified},
		{WithCandidateCode(WithSeverity(errors.Newf("inner"), SeverityFatal), pgcode.ReadOnlySQLTransaction), SeverityFatal},
		{fmt.Errorf("something else"), SeverityUnclassified},
		{errors.Wrap(New(pgcode.SerializationFailure, "retry"), "wrapped"), SeverityTransaction},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			require.Equal(t, tc.expectedSeverity, GetSeverity(tc.err))
		})
	}
	require.Equal(t, SeverityUnclassified, GetSeverity(nil))
}

func TestSeverityOrdering(t *testing.T) {
	require.Less(t, SeverityUnclassified, SeverityStatement)
	require.Less(t, SeverityStatement, SeverityTransaction)
	require.Less(t, SeverityTransaction, SeveritySession)
	require.Less(t, SeveritySession, SeverityFatal)
	require.Equal(t, "transaction", SeverityTransaction.String())
	require.Equal(t, "Severity(9)", Severity(9).String())
}
