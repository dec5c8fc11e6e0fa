// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sessionauth

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/sessioncore/pkg/settings"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/util/leaktest"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
	"github.com/stretchr/testify/require"
)

func TestUserAccessLevel(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	sv := settings.MakeTestingValues()

	require.Equal(t, FullAccess, UserAccessLevel(sv, "alice"))

	DefaultConnectionMode.Override(ctx, sv, int64(NoAccess))
	FullAccessUsers.Override(ctx, sv, "alice, Bob")
	ReadOnlyAccessUsers.Override(ctx, sv, "bob,carol")
	require.Equal(t, FullAccess, UserAccessLevel(sv, "alice"))
	// The full access list wins over the read-only one.
	require.Equal(t, FullAccess, UserAccessLevel(sv, "BOB"))
	require.Equal(t, ReadAccess, UserAccessLevel(sv, "carol"))
	require.Equal(t, NoAccess, UserAccessLevel(sv, "dave"))

	_, err := NewAuthorizer(ctx, sv, "dave")
	require.Equal(t, pgcode.InvalidAuthorizationSpecification, pgerror.GetPGCode(err))
	require.Equal(t, pgerror.SeveritySession, pgerror.GetSeverity(err))

	a, err := NewAuthorizer(ctx, sv, "carol")
	require.NoError(t, err)
	require.True(t, a.ReadOnly())
	require.Equal(t, ReadAccess, a.AccessLevel())
	require.Equal(t, "carol", a.User())
}

func TestSetReadOnly(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	sv := settings.MakeTestingValues()

	a, err := NewAuthorizer(ctx, sv, "alice")
	require.NoError(t, err)
	require.False(t, a.ReadOnly())

	err = a.SetReadOnly(true, false /* pristine */)
	require.Equal(t, pgcode.ActiveSQLTransaction, pgerror.GetPGCode(err))
	require.NoError(t, a.SetReadOnly(true, true /* pristine */))
	require.True(t, a.ReadOnly())
	require.NoError(t, a.SetReadOnly(false, true /* pristine */))

	// A read-only database forces every session read-only after a refresh.
	DatabaseReadOnly.Override(ctx, sv, true)
	require.False(t, a.ReadOnly())
	require.NoError(t, a.Refresh(ctx))
	require.True(t, a.ReadOnly())
	err = a.SetReadOnly(false, true /* pristine */)
	require.Equal(t, pgcode.CannotSetReadWriteConnection, pgerror.GetPGCode(err))
	require.True(t, a.ReadOnly())
}

func TestNarrowest(t *testing.T) {
	defer leaktest.AfterTest(t)()
	require.Equal(t, ReadsSQLData, Narrowest(ModifiesSQLData, ReadsSQLData))
	require.Equal(t, NoSQL, Narrowest(NoSQL, ContainsSQL))
	require.Equal(t, ContainsSQL, Narrowest(ContainsSQL, ContainsSQL))
}

func TestAuthorize(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	sv := settings.MakeTestingValues()
	a, err := NewAuthorizer(ctx, sv, "alice")
	require.NoError(t, err)

	ok := pgcode.SuccessfulCompletion
	ops := []Operation{SelectOp, WriteOp, DDLOp, PropertyWriteOp, JarWriteOp, CallOp, ArbitraryOp}
	expected := map[SQLAllowed][]pgcode.Code{
		ModifiesSQLData: {ok, ok, ok, ok, ok, ok, ok},
		ReadsSQLData: {
			ok,
			pgcode.ModifyingSQLDataNotPermitted,
			pgcode.ModifyingSQLDataNotPermitted,
			pgcode.ModifyingSQLDataNotPermitted,
			pgcode.ModifyingSQLDataNotPermitted,
			ok,
			ok,
		},
		ContainsSQL: {
			pgcode.ReadingSQLDataNotPermitted,
			pgcode.ModifyingSQLDataNotPermitted,
			pgcode.ModifyingSQLDataNotPermitted,
			pgcode.ModifyingSQLDataNotPermitted,
			pgcode.ModifyingSQLDataNotPermitted,
			ok,
			ok,
		},
		NoSQL: {
			pgcode.ContainingSQLNotPermitted,
			pgcode.ContainingSQLNotPermitted,
			pgcode.ContainingSQLNotPermitted,
			pgcode.ContainingSQLNotPermitted,
			pgcode.ContainingSQLNotPermitted,
			pgcode.ContainingSQLNotPermitted,
			pgcode.ContainingSQLNotPermitted,
		},
	}
	for ceiling, codes := range expected {
		for i, op := range ops {
			t.Run(fmt.Sprintf("%s/%s", ceiling, op), func(t *testing.T) {
				err := a.Authorize(op, ceiling)
				if codes[i] == ok {
					require.NoError(t, err)
					return
				}
				require.Equal(t, codes[i], pgerror.GetPGCode(err), "%v", err)
			})
		}
	}

	// The read-only check comes first and has its own code.
	require.NoError(t, a.SetReadOnly(true, true /* pristine */))
	for _, op := range []Operation{WriteOp, DDLOp, PropertyWriteOp, JarWriteOp} {
		err := a.Authorize(op, NoSQL)
		require.Equal(t, pgcode.ReadOnlySQLTransaction, pgerror.GetPGCode(err), "%s", op)
	}
	require.NoError(t, a.Authorize(SelectOp, ModifiesSQLData))
	require.Error(t, a.Authorize(Operation(42), ModifiesSQLData))
}
