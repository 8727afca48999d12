package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func nonFictionColumns() []ParsedColumn {
	return []ParsedColumn{
		{Name: "ID", Type: "int(10)"},
		{Name: "Title", Type: "varchar(2000)"},
		{Name: "Author", Type: "varchar(1000)"},
		{Name: "Series", Type: "varchar(300)"},
		{Name: "Publisher", Type: "varchar(400)"},
		{Name: "Year", Type: "varchar(14)"},
		{Name: "Language", Type: "varchar(150)"},
		{Name: "Extension", Type: "varchar(50)"},
		{Name: "MD5", Type: "char(32)"},
		{Name: "Filesize", Type: "bigint(20)"},
		{Name: "TimeLastModified", Type: "timestamp"},
	}
}

func TestMatchNonFiction(t *testing.T) {
	family := Match("updated", nonFictionColumns())
	assert.Equal(t, FamilyNonFiction, family)
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	columns := nonFictionColumns()
	columns[0].Name = "id"
	columns[1].Name = "TITLE"
	columns[10].Type = "TIMESTAMP"
	family := Match("Updated", columns)
	assert.Equal(t, FamilyNonFiction, family)
}

func TestMatchRejectsDeviations(t *testing.T) {
	testCases := []struct {
		name   string
		table  string
		mutate func([]ParsedColumn) []ParsedColumn
	}{
		{
			name:   "unknown table name",
			table:  "mystery",
			mutate: func(cols []ParsedColumn) []ParsedColumn { return cols },
		},
		{
			name:  "extra column",
			table: "updated",
			mutate: func(cols []ParsedColumn) []ParsedColumn {
				return append(cols, ParsedColumn{Name: "Coverurl", Type: "varchar(200)"})
			},
		},
		{
			name:  "missing column",
			table: "updated",
			mutate: func(cols []ParsedColumn) []ParsedColumn {
				return cols[:len(cols)-1]
			},
		},
		{
			name:  "renamed column",
			table: "updated",
			mutate: func(cols []ParsedColumn) []ParsedColumn {
				cols[1].Name = "BookTitle"
				return cols
			},
		},
		{
			name:  "type mismatch",
			table: "updated",
			mutate: func(cols []ParsedColumn) []ParsedColumn {
				cols[0].Type = "varchar(10)"
				return cols
			},
		},
		{
			name:  "duplicated column",
			table: "updated",
			mutate: func(cols []ParsedColumn) []ParsedColumn {
				cols[2] = cols[1]
				return cols
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			family := Match(tc.table, tc.mutate(nonFictionColumns()))
			assert.Equal(t, FamilyUnknown, family)
		})
	}
}

func TestMatchFictionAndArticles(t *testing.T) {
	fiction := []ParsedColumn{
		{Name: "ID", Type: "int(10)"},
		{Name: "MD5", Type: "char(32)"},
		{Name: "Title", Type: "varchar(2000)"},
		{Name: "Author", Type: "varchar(500)"},
		{Name: "Series", Type: "varchar(300)"},
		{Name: "Language", Type: "varchar(50)"},
		{Name: "Extension", Type: "varchar(10)"},
		{Name: "Filesize", Type: "bigint(20)"},
		{Name: "TimeLastModified", Type: "timestamp"},
	}
	assert.Equal(t, FamilyFiction, Match("fiction", fiction))

	articles := []ParsedColumn{
		{Name: "ID", Type: "int(10) unsigned"},
		{Name: "DOI", Type: "varchar(200)"},
		{Name: "Title", Type: "varchar(2000)"},
		{Name: "Author", Type: "varchar(1000)"},
		{Name: "Journal", Type: "varchar(500)"},
		{Name: "Language", Type: "varchar(50)"},
		{Name: "MD5", Type: "char(32)"},
		{Name: "Filesize", Type: "bigint(20)"},
		{Name: "TimeAdded", Type: "timestamp"},
	}
	assert.Equal(t, FamilyArticle, Match("scimag", articles))
}

func TestNormalizeType(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"varchar(500)", "varchar"},
		{"int(10) unsigned", "int"},
		{"TIMESTAMP", "timestamp"},
		{"bigint(20)", "bigint"},
		{"char(32)", "char"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, NormalizeType(tc.input))
	}
}

func TestParseFamily(t *testing.T) {
	testCases := []struct {
		input    string
		expected Family
		wantErr  bool
	}{
		{input: "nonfiction", expected: FamilyNonFiction},
		{input: "non-fiction", expected: FamilyNonFiction},
		{input: "Fiction", expected: FamilyFiction},
		{input: "articles", expected: FamilyArticle},
		{input: "scimag", expected: FamilyArticle},
		{input: "comics", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tc := range testCases {
		family, err := ParseFamily(tc.input)
		if tc.wantErr {
			assert.Error(t, err)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tc.expected, family)
	}
}
