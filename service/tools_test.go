package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"budgetbuddy/database"
	"budgetbuddy/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupToolDB 用 sqlmock 接管全局数据库连接
func setupToolDB(t *testing.T) sqlmock.Sqlmock {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	oldDB := database.DB
	database.DB = gormDB
	t.Cleanup(func() {
		database.DB = oldDB
		sqlDB.Close()
	})
	return mock
}

func TestToolRegistry_UnknownTool(t *testing.T) {
	registry := DefaultToolRegistry()

	result := registry.Execute(context.Background(), 1, "deleteEverything", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestToolRegistry_Definitions(t *testing.T) {
	registry := DefaultToolRegistry()

	defs := registry.Definitions()
	require.Len(t, defs, 6)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		assert.Equal(t, "function", d.Type)
		names = append(names, d.Function.Name)
	}
	assert.Equal(t, []string{
		"getExpenses", "getCategories", "getSources",
		"createExpense", "createCategory", "createSource",
	}, names)
}

func TestCreateCategoryTool_ReturnsExisting(t *testing.T) {
	mock := setupToolDB(t)
	registry := DefaultToolRegistry()

	// 已存在同名类别（忽略大小写），不应触发插入
	mock.ExpectQuery(`SELECT \* FROM "categories" WHERE \(user_id = \$1 AND lower\(name\) = lower\(\$2\)\)`).
		WithArgs(uint(1), "food", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}).AddRow(3, 1, "Food"))

	result := registry.Execute(context.Background(), 1, "createCategory", json.RawMessage(`{"name":"food"}`))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "category already exists", result.Message)

	cat, ok := result.Data.(models.Category)
	require.True(t, ok)
	assert.Equal(t, uint(3), cat.ID)
	assert.Equal(t, "Food", cat.Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCategoryTool_CreatesWhenMissing(t *testing.T) {
	mock := setupToolDB(t)
	registry := DefaultToolRegistry()

	mock.ExpectQuery(`SELECT \* FROM "categories" WHERE \(user_id = \$1 AND lower\(name\) = lower\(\$2\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "categories"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	result := registry.Execute(context.Background(), 1, "createCategory", json.RawMessage(`{"name":"Travel"}`))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "category created", result.Message)

	cat, ok := result.Data.(models.Category)
	require.True(t, ok)
	assert.Equal(t, uint(7), cat.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCategoryTool_UniqueViolationConverges(t *testing.T) {
	mock := setupToolDB(t)
	registry := DefaultToolRegistry()

	// 首次查询未命中，插入撞唯一索引，回查返回并发创建的幸存行
	mock.ExpectQuery(`SELECT \* FROM "categories" WHERE \(user_id = \$1 AND lower\(name\) = lower\(\$2\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "categories"`).
		WillReturnError(&duplicateKeyError{})
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT \* FROM "categories" WHERE \(user_id = \$1 AND lower\(name\) = lower\(\$2\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}).AddRow(9, 1, "Travel"))

	result := registry.Execute(context.Background(), 1, "createCategory", json.RawMessage(`{"name":"travel"}`))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "category already exists", result.Message)

	cat, ok := result.Data.(models.Category)
	require.True(t, ok)
	assert.Equal(t, uint(9), cat.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

type duplicateKeyError struct{}

func (e *duplicateKeyError) Error() string {
	return `ERROR: duplicate key value violates unique constraint "idx_categories_user_lower_name" (SQLSTATE 23505)`
}

func TestCreateCategoryTool_Validation(t *testing.T) {
	registry := DefaultToolRegistry()

	result := registry.Execute(context.Background(), 1, "createCategory", json.RawMessage(`{"name":"   "}`))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "required")

	long := make([]rune, 41)
	for i := range long {
		long[i] = 'x'
	}
	args, _ := json.Marshal(map[string]string{"name": string(long)})
	result = registry.Execute(context.Background(), 1, "createCategory", args)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "40 characters")
}

func TestCreateSourceTool_CreatesWhenMissing(t *testing.T) {
	mock := setupToolDB(t)
	registry := DefaultToolRegistry()

	mock.ExpectQuery(`SELECT \* FROM "sources" WHERE \(user_id = \$1 AND lower\(name\) = lower\(\$2\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "sources"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	result := registry.Execute(context.Background(), 1, "createSource", json.RawMessage(`{"name":"Credit Card"}`))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "source created", result.Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCategoriesTool(t *testing.T) {
	mock := setupToolDB(t)
	registry := DefaultToolRegistry()

	mock.ExpectQuery(`SELECT \* FROM "categories" WHERE user_id = \$1`).
		WithArgs(uint(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}).
			AddRow(1, 5, "Food").
			AddRow(2, 5, "Transport"))

	result := registry.Execute(context.Background(), 5, "getCategories", nil)
	require.True(t, result.Success, result.Error)

	list, ok := result.Data.([]models.Category)
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "Food", list[0].Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExpensesTool_DateRangeInclusive(t *testing.T) {
	mock := setupToolDB(t)
	registry := DefaultToolRegistry()

	from, _ := time.ParseInLocation(models.DateLayout, "2024-01-01", time.Local)
	to, _ := time.ParseInLocation(models.DateLayout, "2024-01-31", time.Local)

	// dateTo 含当天：上界为次日零点的严格小于
	mock.ExpectQuery(`SELECT \* FROM "expenses" WHERE user_id = \$1 AND date >= \$2 AND date < \$3`).
		WithArgs(uint(1), from, to.AddDate(0, 0, 1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "amount", "date"}).
			AddRow(1, 1, "Groceries", 42.5, from).
			AddRow(2, 1, "Bus ticket", 7.5, from))

	result := registry.Execute(context.Background(), 1, "getExpenses",
		json.RawMessage(`{"dateFrom":"2024-01-01","dateTo":"2024-01-31"}`))
	require.True(t, result.Success, result.Error)

	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	summary, ok := data["summary"].(ExpenseSummary)
	require.True(t, ok)
	assert.Equal(t, 2, summary.Count)
	assert.InDelta(t, 50.0, summary.TotalAmount, 0.001)
	assert.Equal(t, "2024-01-01", summary.DateFrom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExpensesTool_InvalidDate(t *testing.T) {
	registry := DefaultToolRegistry()

	result := registry.Execute(context.Background(), 1, "getExpenses", json.RawMessage(`{"dateFrom":"01/02/2024"}`))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "dateFrom")
}

func TestCreateExpenseTool_UnknownCategoryName(t *testing.T) {
	mock := setupToolDB(t)
	registry := DefaultToolRegistry()

	// 名称未命中时直接失败，不落库
	mock.ExpectQuery(`SELECT \* FROM "categories" WHERE \(user_id = \$1 AND lower\(name\) = lower\(\$2\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}))

	result := registry.Execute(context.Background(), 1, "createExpense",
		json.RawMessage(`{"title":"Lunch","date":"2024-03-05","amount":12.5,"category_name":"Snacks"}`))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExpenseTool_InfersCategory(t *testing.T) {
	mock := setupToolDB(t)
	registry := DefaultToolRegistry()

	mock.ExpectQuery(`SELECT \* FROM "categories" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}).
			AddRow(1, 1, "Food").
			AddRow(2, 1, "Transport"))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "expenses"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	result := registry.Execute(context.Background(), 1, "createExpense",
		json.RawMessage(`{"title":"Burger night","date":"2024-03-05","amount":18}`))
	require.True(t, result.Success, result.Error)

	expense, ok := result.Data.(models.Expense)
	require.True(t, ok)
	require.NotNil(t, expense.CategoryID)
	assert.Equal(t, uint(1), *expense.CategoryID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExpenseTool_Validation(t *testing.T) {
	registry := DefaultToolRegistry()

	cases := []struct {
		name string
		args string
		want string
	}{
		{"缺少标题", `{"date":"2024-01-01","amount":5}`, "title is required"},
		{"金额为负", `{"title":"x","date":"2024-01-01","amount":-5}`, "positive"},
		{"金额缺失", `{"title":"x","date":"2024-01-01"}`, "positive"},
		{"缺少日期", `{"title":"x","amount":5}`, "date is required"},
		{"日期格式错误", `{"title":"x","date":"Jan 1","amount":5}`, "YYYY-MM-DD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := registry.Execute(context.Background(), 1, "createExpense", json.RawMessage(tc.args))
			assert.False(t, result.Success)
			assert.Contains(t, result.Error, tc.want)
		})
	}
}
