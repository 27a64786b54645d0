package workflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sami157/dining-management-server/config"
	"github.com/sami157/dining-management-server/models"
	"github.com/sami157/dining-management-server/store"
	"github.com/sami157/dining-management-server/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Finalization against a real MySQL.
//
// Usage:
// - Run (requires Docker): INTEGRATION_TESTS=1 go test ./workflow -run MySQLFinalization -v

func TestMySQLFinalization(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "dining_test")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	db, err := config.ConnectDatabaseWithRetry(ctx, config.LoadSettings())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	t.Run("settles february", func(t *testing.T) {
		f := newMySQLFixture(t, db)
		a, b := seedFebruary(t, f)

		_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
		require.NoError(t, err)

		// read back from the table rather than trusting the returned value
		fin, err := f.finance.GetFinalization(f.ctx, "2025-02")
		require.NoError(t, err)
		assert.Equal(t, 2, fin.TotalMembers)
		requireDecimal(t, "15", fin.TotalMealsServed)
		requireDecimal(t, "300", fin.TotalExpenses)
		requireDecimal(t, "500", fin.TotalDeposits)
		requireDecimal(t, "20", fin.MealRate)

		da, ok := fin.Detail(a.ID)
		require.True(t, ok)
		requireDecimal(t, "300", da.NewBalance)
		assert.Equal(t, models.BalanceStatusAdvance, da.Status)
		dbal, ok := fin.Detail(b.ID)
		require.True(t, ok)
		requireDecimal(t, "-150", dbal.NewBalance)
		assert.Equal(t, models.BalanceStatusDue, dbal.Status)

		requireDecimal(t, "300", f.balance(t, a.ID))
		requireDecimal(t, "-150", f.balance(t, b.ID))

		_, err = f.finance.FinalizeMonth(f.ctx, "2025-02")
		requireKind(t, err, utils.ErrorKindConflict)

		drifts, err := f.finance.CheckBalances(f.ctx)
		require.NoError(t, err)
		assert.Empty(t, drifts)
	})

	t.Run("undo restores balances", func(t *testing.T) {
		f := newMySQLFixture(t, db)
		a, b := seedFebruary(t, f)

		_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
		require.NoError(t, err)
		_, err = f.finance.UndoFinalization(f.ctx, "2025-02")
		require.NoError(t, err)

		requireDecimal(t, "500", f.balance(t, a.ID))
		requireDecimal(t, "0", f.balance(t, b.ID))
		_, err = f.finance.GetFinalization(f.ctx, "2025-02")
		requireKind(t, err, utils.ErrorKindNotFound)
	})

	t.Run("undo waits for later month", func(t *testing.T) {
		f := newMySQLFixture(t, db)
		a, _ := seedFebruary(t, f)
		_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
		require.NoError(t, err)

		f.schedule(t, "2025-03-02")
		f.register(t, a.ID, "2025-03-02", models.MealTypeNight, 2)
		f.expense(t, "2025-03-02", "bazar", 50)
		_, err = f.finance.FinalizeMonth(f.ctx, "2025-03")
		require.NoError(t, err)

		_, err = f.finance.UndoFinalization(f.ctx, "2025-02")
		requireKind(t, err, utils.ErrorKindConflict)
		assert.Equal(t, "cannot undo 2025-02: 2025-03 is finalized and must be undone first", err.Error())

		_, err = f.finance.UndoFinalization(f.ctx, "2025-03")
		require.NoError(t, err)
		_, err = f.finance.UndoFinalization(f.ctx, "2025-02")
		require.NoError(t, err)
		requireDecimal(t, "500", f.balance(t, a.ID))
	})

	t.Run("meal rate keeps its scale", func(t *testing.T) {
		f := newMySQLFixture(t, db)
		a := f.member(t, "a", 0)
		b := f.member(t, "b", 0)
		f.schedule(t, "2025-02-03")
		f.register(t, a.ID, "2025-02-03", models.MealTypeNight, 1)
		f.register(t, b.ID, "2025-02-03", models.MealTypeNight, 2)
		f.expense(t, "2025-02-03", "bazar", 100)

		_, err := f.finance.FinalizeMonth(f.ctx, "2025-02")
		require.NoError(t, err)
		fin, err := f.finance.GetFinalization(f.ctx, "2025-02")
		require.NoError(t, err)

		requireDecimal(t, "33.3333333333333333", fin.MealRate)
		total := decimal.Zero
		for _, d := range fin.MemberDetails {
			requireDecimal(t, d.TotalMeals.Mul(fin.MealRate).Round(2).String(), d.MealCost)
			total = total.Add(d.MealCost)
		}
		requireDecimal(t, "100", total)
	})
}

// newMySQLFixture recreates the schema so every subtest starts from empty tables.
func newMySQLFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	require.NoError(t, db.Migrator().DropTable(
		&models.MonthlyFinalization{}, &models.MemberBalance{},
		&models.Deposit{}, &models.Expense{},
		&models.MealRegistration{}, &models.MealSchedule{},
		&models.Member{},
	))
	require.NoError(t, models.MigrateTable(db))

	st := store.NewMySQLStore(db)
	return &fixture{
		ctx:     utils.SetIdentityInContext(context.Background(), 1, "Admin", "admin@example.com", string(models.UserRoleAdmin)),
		db:      st,
		finance: NewFinanceWorkflow(st, config.NewDiscardLogger(), WithClock(func() time.Time { return fixedNow })),
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("dining-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=dining_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// e.g. "127.0.0.1:49154\n"
	m := regexp.MustCompile(`:(\d+)`).FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}
