package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RowValue is one raw column value extracted from a dump data tuple.
type RowValue struct {
	Raw  string
	Null bool
}

// DecodeRow materializes one catalog record from a dump tuple. The values
// are positional and follow the parsed column order of the table definition
// the tuple belongs to.
func DecodeRow(family Family, columns []ParsedColumn, values []RowValue) (Object, error) {
	if len(values) != len(columns) {
		return nil, fmt.Errorf("row has %d values, table definition has %d columns", len(values), len(columns))
	}
	row := make(map[string]RowValue, len(values))
	for i, col := range columns {
		row[strings.ToLower(col.Name)] = values[i]
	}
	switch family {
	case FamilyNonFiction:
		return decodeBook(row)
	case FamilyFiction:
		return decodeFictionBook(row)
	case FamilyArticle:
		return decodeArticle(row)
	default:
		return nil, fmt.Errorf("cannot decode row for family %s", family)
	}
}

func decodeBook(row map[string]RowValue) (Object, error) {
	id, err := rowInt64(row, "id")
	if err != nil {
		return nil, err
	}
	stamp, err := rowTime(row, "timelastmodified")
	if err != nil {
		return nil, err
	}
	return &Book{
		RemoteID:     id,
		Title:        rowString(row, "title"),
		Authors:      rowString(row, "author"),
		Series:       rowString(row, "series"),
		Publisher:    rowString(row, "publisher"),
		Year:         rowString(row, "year"),
		Language:     rowString(row, "language"),
		Format:       rowString(row, "extension"),
		MD5:          rowString(row, "md5"),
		FileSize:     rowInt64Lenient(row, "filesize"),
		LastModified: stamp,
	}, nil
}

func decodeFictionBook(row map[string]RowValue) (Object, error) {
	id, err := rowInt64(row, "id")
	if err != nil {
		return nil, err
	}
	stamp, err := rowTime(row, "timelastmodified")
	if err != nil {
		return nil, err
	}
	return &FictionBook{
		RemoteID:     id,
		Title:        rowString(row, "title"),
		Authors:      rowString(row, "author"),
		Series:       rowString(row, "series"),
		Language:     rowString(row, "language"),
		Format:       rowString(row, "extension"),
		MD5:          rowString(row, "md5"),
		FileSize:     rowInt64Lenient(row, "filesize"),
		LastModified: stamp,
	}, nil
}

func decodeArticle(row map[string]RowValue) (Object, error) {
	id, err := rowInt64(row, "id")
	if err != nil {
		return nil, err
	}
	stamp, err := rowTime(row, "timeadded")
	if err != nil {
		return nil, err
	}
	return &Article{
		RemoteID: id,
		Title:    rowString(row, "title"),
		Authors:  rowString(row, "author"),
		DOI:      rowString(row, "doi"),
		Journal:  rowString(row, "journal"),
		Language: rowString(row, "language"),
		MD5:      rowString(row, "md5"),
		FileSize: rowInt64Lenient(row, "filesize"),
		AddedAt:  stamp,
	}, nil
}

func rowString(row map[string]RowValue, name string) string {
	v := row[name]
	if v.Null {
		return ""
	}
	return v.Raw
}

func rowInt64(row map[string]RowValue, name string) (int64, error) {
	v, ok := row[name]
	if !ok || v.Null {
		return 0, fmt.Errorf("column %s is missing or NULL", name)
	}
	n, err := strconv.ParseInt(v.Raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	return n, nil
}

// rowInt64Lenient tolerates missing or malformed numeric payload columns;
// only the identifier and change stamp are load-bearing for the pipeline.
func rowInt64Lenient(row map[string]RowValue, name string) int64 {
	v, ok := row[name]
	if !ok || v.Null {
		return 0
	}
	n, err := strconv.ParseInt(v.Raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func rowTime(row map[string]RowValue, name string) (time.Time, error) {
	v, ok := row[name]
	if !ok || v.Null {
		return time.Time{}, fmt.Errorf("column %s is missing or NULL", name)
	}
	t, err := time.Parse(StampLayout, v.Raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: %w", name, err)
	}
	return t, nil
}
