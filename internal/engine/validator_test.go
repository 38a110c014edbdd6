package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulegen-backend/internal/metadata"
)

func ages(values ...any) *Table {
	rows := make([]map[string]any, len(values))
	for i, v := range values {
		rows[i] = map[string]any{"age": v}
	}
	return NewTable([]string{"age"}, rows)
}

func TestValidator_ChainedComparison(t *testing.T) {
	v := NewValidator("age_range", "18 <= age <= 65", "Age must be between 18 and 65")
	require.NoError(t, v.Err())
	assert.Equal(t, []string{"age"}, v.Columns())

	got := v.Validate(ages(25, 17, 70))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].RowIndex)
	assert.Equal(t, "17", got[0].FieldValue)
	assert.Equal(t, 2, got[1].RowIndex)
	assert.Equal(t, "70", got[1].FieldValue)
	for _, viol := range got {
		assert.Equal(t, "age_range", viol.RuleName)
		assert.Equal(t, "age", viol.FieldName)
		assert.Equal(t, "Age must be between 18 and 65", viol.ErrorMessage)
		assert.Empty(t, viol.Code)
		assert.False(t, viol.IsDiagnostic())
	}
}

func TestValidator_AllRowsPass(t *testing.T) {
	v := NewValidator("positive", "age > 0", "Age must be positive")
	got := v.Validate(ages(1, 2, 3))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestValidator_MultipleColumns(t *testing.T) {
	ds := NewTable([]string{"income", "loan"}, []map[string]any{
		{"income": 5000, "loan": 1000},
		{"income": 1000, "loan": 5000},
	})
	v := NewValidator("loan_ratio", "loan <= income * 0.5", "Loan too large")

	got := v.Validate(ds)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].RowIndex)
	assert.Equal(t, "income,loan", got[0].FieldName)
	assert.Equal(t, "1000,5000", got[0].FieldValue)
}

func TestValidator_MissingColumnIsSingleDiagnostic(t *testing.T) {
	v := NewValidator("income_check", "income > 0 && age > 0", "Income required")
	require.NoError(t, v.Err())

	got := v.Validate(ages(30, 40, 50))
	require.Len(t, got, 1)
	assert.True(t, got[0].IsDiagnostic())
	assert.Equal(t, metadata.DiagnosticRow, got[0].RowIndex)
	assert.Equal(t, "income", got[0].FieldName)
	assert.Equal(t, CodeRuntimeEvaluation, got[0].Code)
	assert.Contains(t, got[0].Detail, "income")

	// An empty dataset still reports the broken rule.
	got = v.Validate(NewTable([]string{"age"}, nil))
	require.Len(t, got, 1)
	assert.True(t, got[0].IsDiagnostic())
}

func TestValidator_CompileErrorIsDiagnostic(t *testing.T) {
	v := NewValidator("broken", "age >", "Broken rule")
	require.Error(t, v.Err())
	assert.Contains(t, v.Err().Error(), "compile condition")

	got := v.Validate(ages(1, 2))
	require.Len(t, got, 1)
	assert.Equal(t, metadata.DiagnosticRow, got[0].RowIndex)
	assert.Equal(t, CodeRuntimeEvaluation, got[0].Code)
	assert.NotEmpty(t, got[0].Detail)
}

func TestValidator_RuntimeErrorFlagsRow(t *testing.T) {
	v := NewValidator("adult", "age >= 18", "Must be an adult")

	got := v.Validate(ages(30, "unknown", nil, 12))
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].RowIndex)
	assert.Equal(t, CodeRuntimeEvaluation, got[0].Code)
	assert.Equal(t, "unknown", got[0].FieldValue)
	assert.NotEmpty(t, got[0].Detail)

	assert.Equal(t, 2, got[1].RowIndex)
	assert.Equal(t, CodeRuntimeEvaluation, got[1].Code)
	assert.Equal(t, "", got[1].FieldValue)

	assert.Equal(t, 3, got[2].RowIndex)
	assert.Empty(t, got[2].Code)
}

func TestValidator_NonBoolResult(t *testing.T) {
	v := NewValidator("sum", "age + 1", "Not a predicate")

	got := v.Validate(ages(5))
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].RowIndex)
	assert.Equal(t, CodeRuntimeEvaluation, got[0].Code)
	assert.Contains(t, got[0].Detail, "expected bool")
}

func TestValidator_PythonStyleCondition(t *testing.T) {
	ds := NewTable([]string{"name", "status"}, []map[string]any{
		{"name": "a", "status": "active"},
		{"name": "None", "status": nil},
	})
	v := NewValidator("status_set", "status is not None and name != 'None'", "Status required")
	require.NoError(t, v.Err())

	got := v.Validate(ds)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].RowIndex)
}

func TestNormalizeCondition(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"x is None", "x == nil"},
		{"x is not None", "x != nil"},
		{"flag == True or other == False", "flag == true or other == false"},
		{"x == None", "x == nil"},
		{`name == "is None"`, `name == "is None"`},
		{`name == 'None' and x is None`, `name == 'None' and x == nil`},
		{`s == "a\"None" and y is None`, `s == "a\"None" and y == nil`},
		{"  age > 1  ", "age > 1"},
		{"NoneType > 1", "NoneType > 1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCondition(tt.in))
		})
	}
}

func TestCompileCondition_Columns(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		want      []string
	}{
		{"plain", "b > 1 && a < 2", []string{"a", "b"}},
		{"let binding", "let limit = 100; amount < limit", []string{"amount"}},
		{"helper call", "not_null(email) && len(email) > 3", []string{"email"}},
		{"row access", `row["age"] > 1`, []string{}},
		{"python literals", "active == True", []string{"active"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cols, err := CompileCondition(tt.condition)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cols)
		})
	}
}

func TestCompileCondition_Empty(t *testing.T) {
	_, _, err := CompileCondition("   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty condition")
}

func TestHelperFunctions(t *testing.T) {
	ds := NewTable([]string{"email", "amount", "joined"}, []map[string]any{
		{"email": "a@b.c", "amount": "12.5", "joined": "2024-01-31"},
		{"email": "  ", "amount": "12.5", "joined": "2024-01-31"},
		{"email": "a@b.c", "amount": "abc", "joined": "2024-01-31"},
		{"email": "a@b.c", "amount": 7, "joined": "31 Jan"},
	})

	v := NewValidator("complete", "not_null(email) && is_numeric(amount) && is_date(joined)", "Incomplete record")
	require.NoError(t, v.Err())
	assert.Equal(t, []string{"amount", "email", "joined"}, v.Columns())

	got := v.Validate(ds)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].RowIndex)
	assert.Equal(t, 2, got[1].RowIndex)
	assert.Equal(t, 3, got[2].RowIndex)
}

func TestHelperFunctions_CustomLayout(t *testing.T) {
	ds := NewTable([]string{"d"}, []map[string]any{{"d": "31/01/2024"}, {"d": "2024-01-31"}})
	v := NewValidator("uk_date", `is_date(d, "02/01/2006")`, "Bad date")

	got := v.Validate(ds)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].RowIndex)
}

func TestHelperFunctions_ArgumentCount(t *testing.T) {
	v := NewValidator("bad_call", "is_null(a, a)", "Bad call")
	got := v.Validate(NewTable([]string{"a"}, []map[string]any{{"a": 1}}))
	require.Len(t, got, 1)
	assert.Equal(t, CodeRuntimeEvaluation, got[0].Code)
}

func TestIsNullAndNumeric(t *testing.T) {
	assert.True(t, isNull(nil))
	assert.True(t, isNull(" "))
	assert.False(t, isNull(0))
	assert.True(t, isNumeric(3))
	assert.True(t, isNumeric(" 4.5 "))
	assert.False(t, isNumeric("nan"))
	assert.False(t, isNumeric(true))
}

func TestValidator_RowMapNotShadowedByColumn(t *testing.T) {
	v := NewValidator("adult", `row["age"] >= 18`, "Must be an adult")
	require.NoError(t, v.Err())

	ds := NewTable([]string{"age", "row"}, []map[string]any{
		{"age": 30, "row": 1},
		{"age": 10, "row": 2},
	})
	got := v.Validate(ds)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].RowIndex)
	assert.Empty(t, got[0].Code)
}
