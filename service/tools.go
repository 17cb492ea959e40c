package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"budgetbuddy/database"
	"budgetbuddy/models"

	"gorm.io/gorm"
)

// ToolResult 工具执行的统一返回信封。
// 执行失败不抛出，以 success:false 返回，让模型自行向用户转述。
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Tool 可供模型调用的工具：名称、描述、输入 Schema 和服务端执行体
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Execute     func(ctx context.Context, userID uint, args json.RawMessage) ToolResult
}

// ToolRegistry 工具注册表
type ToolRegistry struct {
	tools []Tool
	index map[string]*Tool
}

// NewToolRegistry 创建注册表
func NewToolRegistry(tools []Tool) *ToolRegistry {
	r := &ToolRegistry{tools: tools, index: make(map[string]*Tool, len(tools))}
	for i := range r.tools {
		r.index[r.tools[i].Name] = &r.tools[i]
	}
	return r
}

// Definitions 生成随请求下发的工具声明列表
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToolDefinition{
			Type: "function",
			Function: FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return defs
}

// Execute 按名称执行工具；未注册的名称同样以 success:false 返回
func (r *ToolRegistry) Execute(ctx context.Context, userID uint, name string, args json.RawMessage) ToolResult {
	t, ok := r.index[name]
	if !ok {
		return ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}
	return t.Execute(ctx, userID, args)
}

// DefaultToolRegistry 产品内置的六个工具
func DefaultToolRegistry() *ToolRegistry {
	return NewToolRegistry([]Tool{
		getExpensesTool(),
		getCategoriesTool(),
		getSourcesTool(),
		createExpenseTool(),
		createCategoryTool(),
		createSourceTool(),
	})
}

func toolDB(ctx context.Context) *gorm.DB {
	return database.DB.WithContext(ctx)
}

// parseToolDate 工具参数统一使用 YYYY-MM-DD
func parseToolDate(s string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout, s, time.Local)
}

// ---- getExpenses ----

type getExpensesArgs struct {
	DateFrom  string   `json:"dateFrom"`
	DateTo    string   `json:"dateTo"`
	Category  string   `json:"category"`
	MinAmount *float64 `json:"minAmount"`
	MaxAmount *float64 `json:"maxAmount"`
}

// ExpenseSummary getExpenses 返回的汇总信息
type ExpenseSummary struct {
	Count       int      `json:"count"`
	TotalAmount float64  `json:"total_amount"`
	DateFrom    string   `json:"date_from,omitempty"`
	DateTo      string   `json:"date_to,omitempty"`
	Category    string   `json:"category,omitempty"`
	MinAmount   *float64 `json:"min_amount,omitempty"`
	MaxAmount   *float64 `json:"max_amount,omitempty"`
}

func getExpensesTool() Tool {
	return Tool{
		Name: "getExpenses",
		Description: "Get the user's expenses. Supports optional filters: dateFrom/dateTo (YYYY-MM-DD, dateTo inclusive), " +
			"category (category name), minAmount/maxAmount. Returns matching expenses plus a summary with count and total amount.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"dateFrom":  map[string]interface{}{"type": "string", "description": "Start date, inclusive (YYYY-MM-DD)"},
				"dateTo":    map[string]interface{}{"type": "string", "description": "End date, inclusive (YYYY-MM-DD)"},
				"category":  map[string]interface{}{"type": "string", "description": "Category name to filter by"},
				"minAmount": map[string]interface{}{"type": "number", "description": "Minimum amount, inclusive"},
				"maxAmount": map[string]interface{}{"type": "number", "description": "Maximum amount, inclusive"},
			},
		},
		Execute: func(ctx context.Context, userID uint, raw json.RawMessage) ToolResult {
			var args getExpensesArgs
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}
				}
			}

			query := toolDB(ctx).Model(&models.Expense{}).
				Preload("Category").Preload("Source").
				Where("user_id = ?", userID)

			if args.DateFrom != "" {
				from, err := parseToolDate(args.DateFrom)
				if err != nil {
					return ToolResult{Success: false, Error: "invalid dateFrom, expected YYYY-MM-DD"}
				}
				query = query.Where("date >= ?", from)
			}
			if args.DateTo != "" {
				to, err := parseToolDate(args.DateTo)
				if err != nil {
					return ToolResult{Success: false, Error: "invalid dateTo, expected YYYY-MM-DD"}
				}
				// 含结束日当天
				query = query.Where("date < ?", to.AddDate(0, 0, 1))
			}
			if args.Category != "" {
				var cat models.Category
				if err := toolDB(ctx).
					Where("user_id = ? AND lower(name) = lower(?)", userID, strings.TrimSpace(args.Category)).
					First(&cat).Error; err != nil {
					return ToolResult{Success: false, Error: fmt.Sprintf("category %q not found", args.Category)}
				}
				query = query.Where("category_id = ?", cat.ID)
			}
			if args.MinAmount != nil {
				query = query.Where("amount >= ?", *args.MinAmount)
			}
			if args.MaxAmount != nil {
				query = query.Where("amount <= ?", *args.MaxAmount)
			}

			var expenses []models.Expense
			if err := query.Order("date DESC").Find(&expenses).Error; err != nil {
				return ToolResult{Success: false, Error: "failed to fetch expenses: " + err.Error()}
			}

			summary := ExpenseSummary{
				Count:     len(expenses),
				DateFrom:  args.DateFrom,
				DateTo:    args.DateTo,
				Category:  args.Category,
				MinAmount: args.MinAmount,
				MaxAmount: args.MaxAmount,
			}
			for _, e := range expenses {
				summary.TotalAmount += e.Amount
			}

			return ToolResult{Success: true, Data: map[string]interface{}{
				"expenses": expenses,
				"summary":  summary,
			}}
		},
	}
}

// ---- getCategories / getSources ----

func getCategoriesTool() Tool {
	return Tool{
		Name:        "getCategories",
		Description: "List all of the user's expense categories.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Execute: func(ctx context.Context, userID uint, _ json.RawMessage) ToolResult {
			var list []models.Category
			if err := toolDB(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&list).Error; err != nil {
				return ToolResult{Success: false, Error: "failed to fetch categories: " + err.Error()}
			}
			return ToolResult{Success: true, Data: list}
		},
	}
}

func getSourcesTool() Tool {
	return Tool{
		Name:        "getSources",
		Description: "List all of the user's payment sources (e.g. Cash, Credit Card).",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Execute: func(ctx context.Context, userID uint, _ json.RawMessage) ToolResult {
			var list []models.Source
			if err := toolDB(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&list).Error; err != nil {
				return ToolResult{Success: false, Error: "failed to fetch sources: " + err.Error()}
			}
			return ToolResult{Success: true, Data: list}
		},
	}
}

// ---- createCategory / createSource ----

type createNameArgs struct {
	Name string `json:"name"`
}

// isUniqueViolation 粗略识别唯一索引冲突（Postgres 23505）
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

// idempotentCreateCategory 忽略大小写的“存在即返回”创建。
// 插入撞上唯一索引时回查一次，并发的重复创建收敛到幸存行。
func idempotentCreateCategory(ctx context.Context, userID uint, name string) (models.Category, bool, error) {
	var existing models.Category
	err := toolDB(ctx).
		Where("user_id = ? AND lower(name) = lower(?)", userID, name).
		First(&existing).Error
	if err == nil {
		return existing, false, nil
	}

	cat := models.Category{UserID: userID, Name: name}
	if err := toolDB(ctx).Create(&cat).Error; err != nil {
		if isUniqueViolation(err) {
			if lookupErr := toolDB(ctx).
				Where("user_id = ? AND lower(name) = lower(?)", userID, name).
				First(&existing).Error; lookupErr == nil {
				return existing, false, nil
			}
		}
		return models.Category{}, false, err
	}
	return cat, true, nil
}

func idempotentCreateSource(ctx context.Context, userID uint, name string) (models.Source, bool, error) {
	var existing models.Source
	err := toolDB(ctx).
		Where("user_id = ? AND lower(name) = lower(?)", userID, name).
		First(&existing).Error
	if err == nil {
		return existing, false, nil
	}

	src := models.Source{UserID: userID, Name: name}
	if err := toolDB(ctx).Create(&src).Error; err != nil {
		if isUniqueViolation(err) {
			if lookupErr := toolDB(ctx).
				Where("user_id = ? AND lower(name) = lower(?)", userID, name).
				First(&existing).Error; lookupErr == nil {
				return existing, false, nil
			}
		}
		return models.Source{}, false, err
	}
	return src, true, nil
}

func createCategoryTool() Tool {
	return Tool{
		Name: "createCategory",
		Description: "Create a new expense category. If a category with the same name already exists " +
			"(case-insensitive), the existing category is returned instead of creating a duplicate.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{"type": "string", "description": "Category name, at most 40 characters"},
			},
			"required": []string{"name"},
		},
		Execute: func(ctx context.Context, userID uint, raw json.RawMessage) ToolResult {
			var args createNameArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}
			}
			name := strings.TrimSpace(args.Name)
			if name == "" {
				return ToolResult{Success: false, Error: "name is required"}
			}
			if len([]rune(name)) > 40 {
				return ToolResult{Success: false, Error: "name must be 40 characters or less"}
			}

			cat, created, err := idempotentCreateCategory(ctx, userID, name)
			if err != nil {
				return ToolResult{Success: false, Error: "failed to create category: " + err.Error()}
			}
			msg := "category created"
			if !created {
				msg = "category already exists"
			}
			return ToolResult{Success: true, Data: cat, Message: msg}
		},
	}
}

func createSourceTool() Tool {
	return Tool{
		Name: "createSource",
		Description: "Create a new payment source. If a source with the same name already exists " +
			"(case-insensitive), the existing source is returned instead of creating a duplicate.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{"type": "string", "description": "Source name, at most 40 characters"},
			},
			"required": []string{"name"},
		},
		Execute: func(ctx context.Context, userID uint, raw json.RawMessage) ToolResult {
			var args createNameArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}
			}
			name := strings.TrimSpace(args.Name)
			if name == "" {
				return ToolResult{Success: false, Error: "name is required"}
			}
			if len([]rune(name)) > 40 {
				return ToolResult{Success: false, Error: "name must be 40 characters or less"}
			}

			src, created, err := idempotentCreateSource(ctx, userID, name)
			if err != nil {
				return ToolResult{Success: false, Error: "failed to create source: " + err.Error()}
			}
			msg := "source created"
			if !created {
				msg = "source already exists"
			}
			return ToolResult{Success: true, Data: src, Message: msg}
		},
	}
}

// ---- createExpense ----

type createExpenseArgs struct {
	Title        string   `json:"title"`
	Date         string   `json:"date"`
	Amount       *float64 `json:"amount"`
	Description  string   `json:"description"`
	CategoryID   *uint    `json:"category_id"`
	CategoryName string   `json:"category_name"`
	SourceID     *uint    `json:"source_id"`
	SourceName   string   `json:"source_name"`
}

func createExpenseTool() Tool {
	return Tool{
		Name: "createExpense",
		Description: "Create a new expense for the user. category_name/source_name are resolved to existing " +
			"records by case-insensitive exact match and fail when no match exists. When no category is given, " +
			"a keyword-based best guess among the user's existing categories is applied; if nothing matches, " +
			"the expense is left uncategorized.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"title":         map[string]interface{}{"type": "string", "description": "Expense title, at most 50 characters"},
				"date":          map[string]interface{}{"type": "string", "description": "Expense date (YYYY-MM-DD)"},
				"amount":        map[string]interface{}{"type": "number", "description": "Amount in dollars, must be positive"},
				"description":   map[string]interface{}{"type": "string", "description": "Optional description, at most 200 characters"},
				"category_id":   map[string]interface{}{"type": "integer", "description": "Existing category id"},
				"category_name": map[string]interface{}{"type": "string", "description": "Existing category name (case-insensitive)"},
				"source_id":     map[string]interface{}{"type": "integer", "description": "Existing source id"},
				"source_name":   map[string]interface{}{"type": "string", "description": "Existing source name (case-insensitive)"},
			},
			"required": []string{"title", "date", "amount"},
		},
		Execute: func(ctx context.Context, userID uint, raw json.RawMessage) ToolResult {
			var args createExpenseArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}
			}

			title := strings.TrimSpace(args.Title)
			if title == "" {
				return ToolResult{Success: false, Error: "title is required"}
			}
			if len([]rune(title)) > 50 {
				return ToolResult{Success: false, Error: "title must be 50 characters or less"}
			}
			if len([]rune(args.Description)) > 200 {
				return ToolResult{Success: false, Error: "description must be 200 characters or less"}
			}
			if args.Amount == nil || *args.Amount <= 0 {
				return ToolResult{Success: false, Error: "amount must be a positive number"}
			}
			if args.Date == "" {
				return ToolResult{Success: false, Error: "date is required"}
			}
			date, err := parseToolDate(args.Date)
			if err != nil {
				return ToolResult{Success: false, Error: "invalid date, expected YYYY-MM-DD"}
			}

			// 解析类别：显式 id / 名称 > 关键词推断 > 未分类
			var categoryID *uint
			switch {
			case args.CategoryID != nil:
				var cat models.Category
				if err := toolDB(ctx).Where("id = ? AND user_id = ?", *args.CategoryID, userID).First(&cat).Error; err != nil {
					return ToolResult{Success: false, Error: fmt.Sprintf("category id %d not found", *args.CategoryID)}
				}
				categoryID = &cat.ID
			case args.CategoryName != "":
				var cat models.Category
				if err := toolDB(ctx).
					Where("user_id = ? AND lower(name) = lower(?)", userID, strings.TrimSpace(args.CategoryName)).
					First(&cat).Error; err != nil {
					return ToolResult{Success: false, Error: fmt.Sprintf("category %q not found, create it first or omit it", args.CategoryName)}
				}
				categoryID = &cat.ID
			default:
				var categories []models.Category
				if err := toolDB(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&categories).Error; err == nil {
					if guess := InferCategory(title, args.Description, categories); guess != nil {
						categoryID = &guess.ID
					}
				}
			}

			var sourceID *uint
			switch {
			case args.SourceID != nil:
				var src models.Source
				if err := toolDB(ctx).Where("id = ? AND user_id = ?", *args.SourceID, userID).First(&src).Error; err != nil {
					return ToolResult{Success: false, Error: fmt.Sprintf("source id %d not found", *args.SourceID)}
				}
				sourceID = &src.ID
			case args.SourceName != "":
				var src models.Source
				if err := toolDB(ctx).
					Where("user_id = ? AND lower(name) = lower(?)", userID, strings.TrimSpace(args.SourceName)).
					First(&src).Error; err != nil {
					return ToolResult{Success: false, Error: fmt.Sprintf("source %q not found, create it first or omit it", args.SourceName)}
				}
				sourceID = &src.ID
			}

			expense := models.Expense{
				UserID:      userID,
				Title:       title,
				Description: args.Description,
				Amount:      *args.Amount,
				Date:        date,
				CategoryID:  categoryID,
				SourceID:    sourceID,
			}
			if err := toolDB(ctx).Create(&expense).Error; err != nil {
				return ToolResult{Success: false, Error: "failed to create expense: " + err.Error()}
			}

			return ToolResult{Success: true, Data: expense, Message: "expense created"}
		},
	}
}
