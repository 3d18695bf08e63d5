package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/creatortent/internal/models"
)

const fixedUnix = int64(1700000000)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(sqlx.NewDb(db, "mysql"))
	s.now = func() time.Time { return time.Unix(fixedUnix, 0) }
	return s, mock
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func TestCreateUserDuplicateEmailIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("INSERT INTO users")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := s.CreateUser(context.Background(), &models.User{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserFillsDefaults(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("INSERT INTO users")).
		WithArgs(sqlmock.AnyArg(), "a@example.com", "hash", "Ada", "", "", "USD", "", fixedUnix, fixedUnix).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &models.User{Email: "a@example.com", PasswordHash: "hash", FirstName: "Ada"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "USD", u.DisplayCurrency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmailNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("FROM users WHERE email = ?")).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUserProfileMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("UPDATE users SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateUserProfile(context.Background(), &models.User{ID: "u1"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTentInsertsCreatorMembership(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO tents")).
		WithArgs(sqlmock.AnyArg(), "Launch", "", "ABCD1234", "u1", fixedUnix, fixedUnix).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO tent_members")).
		WithArgs(sqlmock.AnyArg(), "u1", models.RoleManager, fixedUnix).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tent := &models.Tent{Name: "Launch", InviteCode: "ABCD1234", CreatedBy: "u1"}
	require.NoError(t, s.CreateTent(context.Background(), tent, models.RoleManager))
	require.Len(t, tent.Members, 1)
	assert.Equal(t, models.RoleManager, tent.Members[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTentRollsBackOnMemberFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO tents")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO tent_members")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.CreateTent(context.Background(), &models.Tent{Name: "x", CreatedBy: "u1"}, models.RoleClient)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTentInviteCodeCollision(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO tents")).WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectRollback()

	err := s.CreateTent(context.Background(), &models.Tent{Name: "x", CreatedBy: "u1"}, models.RoleClient)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestJoinTentInsertsDecidedRole(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM tents WHERE id = ? FOR UPDATE")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(q("SELECT tent_id, user_id, role, joined_at FROM tent_members")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"tent_id", "user_id", "role", "joined_at"}).
			AddRow("t1", "u1", models.RoleManager, 1))
	mock.ExpectExec(q("INSERT INTO tent_members")).
		WithArgs("t1", "u2", models.RoleClient, fixedUnix).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen []models.TentMember
	member, inserted, err := s.JoinTent(context.Background(), "t1", "u2", func(members []models.TentMember) (string, error) {
		seen = members
		return models.OppositeRole(members[0].Role), nil
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, models.RoleClient, member.Role)
	assert.Len(t, seen, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinTentDecisionErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	errFull := errors.New("full")
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(q("FROM tent_members")).
		WillReturnRows(sqlmock.NewRows([]string{"tent_id", "user_id", "role", "joined_at"}).
			AddRow("t1", "u1", models.RoleManager, 1).
			AddRow("t1", "u2", models.RoleClient, 2))
	mock.ExpectRollback()

	_, inserted, err := s.JoinTent(context.Background(), "t1", "u3", func([]models.TentMember) (string, error) {
		return "", errFull
	})
	assert.ErrorIs(t, err, errFull)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinTentExistingMemberIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("t1"))
	mock.ExpectQuery(q("FROM tent_members")).
		WillReturnRows(sqlmock.NewRows([]string{"tent_id", "user_id", "role", "joined_at"}).
			AddRow("t1", "u1", models.RoleManager, 1))
	mock.ExpectCommit()

	member, inserted, err := s.JoinTent(context.Background(), "t1", "u1", func([]models.TentMember) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "u1", member.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveLastMemberDeletesTent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM tent_members")).WithArgs("t1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM tent_members")).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec(q("DELETE FROM tents WHERE id = ?")).WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	remaining, err := s.RemoveMember(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveCreatorTransfersTent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM tent_members")).WithArgs("t1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM tent_members")).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectExec(q("UPDATE tents SET created_by")).WithArgs("t1", "t1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	remaining, err := s.RemoveMember(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvoiceWritesItemsInOrder(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO invoices")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO invoice_items")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 0, "Video", 1.0, 500.0, 500.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO invoice_items")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 1, "Story", 2.0, 50.0, 100.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inv := &models.Invoice{
		TentID: "t1", InvoiceNumber: "INV-202311-0001", Status: models.InvoiceDraft,
		Items: []models.InvoiceItem{
			{Description: "Video", Quantity: 1, UnitPrice: 500, Amount: 500},
			{Description: "Story", Quantity: 2, UnitPrice: 50, Amount: 100},
		},
	}
	require.NoError(t, s.CreateInvoice(context.Background(), inv))
	assert.Equal(t, inv.ID, inv.Items[1].InvoiceID)
	assert.Equal(t, 1, inv.Items[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInvoiceStatusLostRaceIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("UPDATE invoices SET status = ?")).
		WithArgs(models.InvoiceApproved, fixedUnix, "i1", models.InvoicePendingApproval).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateInvoiceStatus(context.Background(), "i1", models.InvoicePendingApproval, models.InvoiceApproved)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUpdateInvoiceAfterStatusChangeIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE invoices SET invoice_number = ?")).
		WithArgs("INV-202311-0001", "Acme", "", "USD", int64(1700000000), int64(1700000000),
			models.InvoiceDraft, 0.0, 500.0, 0.0, 500.0, "", fixedUnix, "i1", models.InvoiceDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	inv := &models.Invoice{
		ID: "i1", InvoiceNumber: "INV-202311-0001", ClientName: "Acme", Currency: "USD",
		IssueDate: 1700000000, DueDate: 1700000000, Status: models.InvoiceDraft,
		Subtotal: 500, Total: 500,
		Items: []models.InvoiceItem{{Description: "Video", Quantity: 1, UnitPrice: 500, Amount: 500}},
	}
	err := s.UpdateInvoice(context.Background(), inv, models.InvoiceDraft)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInvoiceReplacesItems(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE invoices SET invoice_number = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM invoice_items WHERE invoice_id = ?")).WithArgs("i1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q("INSERT INTO invoice_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inv := &models.Invoice{
		ID: "i1", Status: models.InvoiceDraft,
		Items: []models.InvoiceItem{{Description: "Video", Quantity: 1, UnitPrice: 500, Amount: 500}},
	}
	require.NoError(t, s.UpdateInvoice(context.Background(), inv, models.InvoiceRejected))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextInvoiceNumber(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("SELECT COALESCE(MAX(")).
		WithArgs(12, "t1", "INV-202403-%").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(41))

	num, err := s.NextInvoiceNumber(context.Background(), "t1", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "INV-202403-0042", num)
}

func TestListInvoicesFiltersByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("SELECT COUNT(*) FROM invoices WHERE tent_id = ? AND status = ?")).
		WithArgs("t1", models.InvoicePaid).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(q("FROM invoices WHERE tent_id = ? AND status = ?")).
		WithArgs("t1", models.InvoicePaid, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tent_id", "status", "total"}).
			AddRow("i1", "t1", models.InvoicePaid, "120.50"))

	list, total, err := s.ListInvoices(context.Background(), InvoiceFilter{TentID: "t1", Status: models.InvoicePaid, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, 120.5, list[0].Total)
}

func TestUpsertRateReloadsRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("ON DUPLICATE KEY UPDATE")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(q("FROM user_rates WHERE user_id = ? AND service_type = ?")).
		WithArgs("u1", "reel").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "service_type", "amount", "currency"}).
			AddRow("existing", "u1", "reel", "300.00", "USD"))

	rate := &models.UserRate{UserID: "u1", ServiceType: "reel", Amount: 300, Currency: "USD"}
	require.NoError(t, s.UpsertRate(context.Background(), rate))
	assert.Equal(t, "existing", rate.ID)
}

func TestCreateNotificationStoresNullTent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("INSERT INTO notifications")).
		WithArgs(sqlmock.AnyArg(), "u1", nil, models.NotifyNewInquiry, "title", "body", fixedUnix).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &models.Notification{UserID: "u1", Type: models.NotifyNewInquiry, Title: "title", Body: "body"}
	require.NoError(t, s.CreateNotification(context.Background(), n))
	assert.Equal(t, fixedUnix, n.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInquiryExists(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("FROM email_inquiries WHERE connection_id = ? AND message_id = ?")).
		WithArgs("c1", "m1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	ok, err := s.InquiryExists(context.Background(), "c1", "m1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateInquiryDuplicateMessage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("INSERT INTO email_inquiries")).WillReturnError(&mysql.MySQLError{Number: 1062})

	err := s.CreateInquiry(context.Background(), &models.EmailInquiry{ConnectionID: "c1", MessageID: "m1"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGetConnectionScansNullableColumns(t *testing.T) {
	s, mock := newMockStore(t)
	synced := int64(1699999000)
	mock.ExpectQuery(q("FROM email_connections WHERE id = ?")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "tent_id", "provider", "email_address", "last_synced_at"}).
			AddRow("c1", "u1", "", models.ProviderGmail, "me@gmail.com", synced))

	conn, err := s.GetConnection(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, conn.LastSyncedAt)
	assert.Equal(t, synced, *conn.LastSyncedAt)
	assert.Empty(t, conn.TentID)
}
