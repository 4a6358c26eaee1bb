package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuditLogValidate(t *testing.T) {
	actor := Identity{UserID: "root", Role: "admin"}
	log := NewAuditLog(actor, AuditSectionsSet, "section_access", "sales", map[string]any{"sections": []string{"sales"}})
	require.NoError(t, log.Validate())
	require.Equal(t, "admin", log.Role)

	log.EntityID = ""
	require.ErrorIs(t, log.Validate(), ErrValidation)

	anonymous := NewAuditLog(Identity{}, AuditPermissionsUpdated, "permission_matrix", "v1", nil)
	require.ErrorIs(t, anonymous.Validate(), ErrValidation)
}
