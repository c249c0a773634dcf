// Package repository implements MySQL persistence for accounts, settings,
// refresh tokens and net operations. Sentinel errors let the service layer
// tell missing rows and uniqueness violations apart from real failures.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique key.
var ErrDuplicate = errors.New("duplicate")

// ErrStateChanged is returned by conditional status updates when the row was
// no longer in the expected state.
var ErrStateChanged = errors.New("state changed")

// ErrLockTimeout is returned when a named lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock wait timeout")

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "1062")
}
