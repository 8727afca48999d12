package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/alexandria/internal/catalog"
	"github.com/lepinkainen/alexandria/internal/progress"
	"github.com/lepinkainen/alexandria/internal/testutil"
)

const nonFictionSegment = "DROP TABLE IF EXISTS `updated`;\n" +
	"CREATE TABLE `updated` (\n" +
	"  `ID` int(10) unsigned NOT NULL AUTO_INCREMENT,\n" +
	"  `Title` varchar(2000) DEFAULT '',\n" +
	"  `Author` varchar(1000) DEFAULT '',\n" +
	"  `Series` varchar(300) DEFAULT '',\n" +
	"  `Publisher` varchar(400) DEFAULT '',\n" +
	"  `Year` varchar(14) DEFAULT '',\n" +
	"  `Language` varchar(150) DEFAULT '',\n" +
	"  `Extension` varchar(50) DEFAULT '',\n" +
	"  `MD5` char(32) DEFAULT '',\n" +
	"  `Filesize` bigint(20) DEFAULT 0,\n" +
	"  `TimeLastModified` timestamp NOT NULL,\n" +
	"  PRIMARY KEY (`ID`)\n" +
	") ENGINE=MyISAM;\n" +
	"LOCK TABLES `updated` WRITE;\n" +
	"INSERT INTO `updated` VALUES " +
	"(1,'One','A','','P','2001','English','pdf','aa',100,'2021-01-01 00:00:00')," +
	"(2,'Two','B','','P','2002','English','epub','bb',200,'2021-01-02 00:00:00')," +
	"(3,'Three','C','','P','2003','English','djvu','cc',300,'2021-01-03 00:00:00');\n" +
	"UNLOCK TABLES;\n"

const fictionSegment = "CREATE TABLE `fiction` (\n" +
	"  `ID` int(10) unsigned NOT NULL,\n" +
	"  `MD5` char(32) DEFAULT '',\n" +
	"  `Title` varchar(2000) DEFAULT '',\n" +
	"  `Author` varchar(500) DEFAULT '',\n" +
	"  `Series` varchar(300) DEFAULT '',\n" +
	"  `Language` varchar(50) DEFAULT '',\n" +
	"  `Extension` varchar(10) DEFAULT '',\n" +
	"  `Filesize` bigint(20) DEFAULT 0,\n" +
	"  `TimeLastModified` timestamp NOT NULL\n" +
	") ENGINE=MyISAM;\n" +
	"INSERT INTO `fiction` VALUES " +
	"(10,'dd','Novel','D','','English','epub',400,'2021-02-01 00:00:00')," +
	"(11,'ee','Saga','E','','English','epub',500,'2021-02-02 00:00:00');\n"

const articleSegment = "CREATE TABLE `scimag` (\n" +
	"  `ID` int(10) unsigned NOT NULL,\n" +
	"  `DOI` varchar(200) DEFAULT '',\n" +
	"  `Title` varchar(2000) DEFAULT '',\n" +
	"  `Author` varchar(1000) DEFAULT '',\n" +
	"  `Journal` varchar(500) DEFAULT '',\n" +
	"  `Language` varchar(50) DEFAULT '',\n" +
	"  `MD5` char(32) DEFAULT '',\n" +
	"  `Filesize` bigint(20) DEFAULT 0,\n" +
	"  `TimeAdded` timestamp NOT NULL\n" +
	") ENGINE=MyISAM;\n" +
	"INSERT INTO `scimag` VALUES " +
	"(20,'10.1/a','Paper','F','J','English','ff',600,'2021-03-01 00:00:00');\n"

func importDump(o *Orchestrator, text string, want catalog.Family) Report {
	return o.ImportDump(context.Background(), strings.NewReader(text), int64(len(text)), want)
}

func TestImportSingleSegment(t *testing.T) {
	store := testutil.NewFakeStore()
	orch := New(store, nil)

	report := importDump(orch, nonFictionSegment, catalog.FamilyUnknown)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, catalog.FamilyNonFiction, report.Family)
	assert.Equal(t, int64(3), report.Added)
	assert.Equal(t, int64(0), report.Updated)
	assert.Equal(t, []int64{1, 2, 3}, store.RemoteIDs(catalog.FamilyNonFiction))

	stored, ok := store.Get(catalog.FamilyNonFiction, 2)
	require.True(t, ok)
	assert.Equal(t, "Two", stored.(*catalog.Book).Title)
}

func TestImportIsIdempotent(t *testing.T) {
	store := testutil.NewFakeStore()
	orch := New(store, nil)

	first := importDump(orch, nonFictionSegment, catalog.FamilyUnknown)
	require.Equal(t, StatusCompleted, first.Status)
	require.Equal(t, int64(3), first.Added)

	second := importDump(orch, nonFictionSegment, catalog.FamilyUnknown)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.Equal(t, int64(0), second.Added)
	assert.Equal(t, int64(0), second.Updated, "identical change stamps must not update")
	assert.Equal(t, []int64{1, 2, 3}, store.RemoteIDs(catalog.FamilyNonFiction))
}

func TestImportMultipleSegments(t *testing.T) {
	store := testutil.NewFakeStore()
	orch := New(store, nil)

	report := importDump(orch, nonFictionSegment+fictionSegment+articleSegment, catalog.FamilyUnknown)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, int64(6), report.Added)
	assert.Equal(t, []int64{1, 2, 3}, store.RemoteIDs(catalog.FamilyNonFiction))
	assert.Equal(t, []int64{10, 11}, store.RemoteIDs(catalog.FamilyFiction))
	assert.Equal(t, []int64{20}, store.RemoteIDs(catalog.FamilyArticle))
}

func TestImportSkipsUnknownSegments(t *testing.T) {
	unknown := "CREATE TABLE `description` (\n" +
		"  `ID` int(10) NOT NULL,\n" +
		"  `Blob` text\n" +
		");\n" +
		"INSERT INTO `description` VALUES (1,'x');\n"
	store := testutil.NewFakeStore()
	orch := New(store, nil)

	report := importDump(orch, unknown+nonFictionSegment, catalog.FamilyUnknown)

	assert.Equal(t, StatusCompleted, report.Status)
	assert.Equal(t, int64(3), report.Added)
	assert.Empty(t, store.RemoteIDs(catalog.FamilyFiction))
}

func TestImportRequiredFamilyMismatch(t *testing.T) {
	store := testutil.NewFakeStore()
	orch := New(store, nil)

	report := importDump(orch, fictionSegment, catalog.FamilyNonFiction)

	assert.Equal(t, StatusError, report.Status)
	require.Error(t, report.Err)
	assert.Empty(t, store.RemoteIDs(catalog.FamilyFiction), "a mismatching segment must not be imported")
}

func TestImportDataNotFound(t *testing.T) {
	t.Run("no table definition", func(t *testing.T) {
		orch := New(testutil.NewFakeStore(), nil)
		report := importDump(orch, "-- nothing here\nDROP TABLE IF EXISTS `updated`;\n", catalog.FamilyUnknown)
		assert.Equal(t, StatusDataNotFound, report.Status)
	})

	t.Run("definition without data section", func(t *testing.T) {
		withoutData := strings.SplitAfter(nonFictionSegment, "ENGINE=MyISAM;\n")[0]
		orch := New(testutil.NewFakeStore(), nil)
		report := importDump(orch, withoutData, catalog.FamilyUnknown)
		assert.Equal(t, StatusDataNotFound, report.Status)
	})
}

func TestImportCorruptedDump(t *testing.T) {
	truncated := "CREATE TABLE `updated` (\n  `ID` int(10) NOT NULL,\n"
	store := testutil.NewFakeStore()
	orch := New(store, nil)

	report := importDump(orch, truncated, catalog.FamilyUnknown)

	assert.Equal(t, StatusCorrupted, report.Status)
	require.Error(t, report.Err)
}

func TestImportLowDiskSpacePreflight(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Free = 1 << 20
	sink := testutil.NewSinkRecorder()
	orch := New(store, sink)

	report := importDump(orch, nonFictionSegment, catalog.FamilyUnknown)

	assert.Equal(t, StatusLowDiskSpace, report.Status)
	assert.Empty(t, store.RemoteIDs(catalog.FamilyNonFiction))
	require.NotEmpty(t, sink.Events())
	snapshot, ok := sink.Events()[0].(progress.DiskSpace)
	require.True(t, ok)
	assert.Equal(t, uint64(1<<20), snapshot.Free)
}

func TestImportLowDiskSpaceMidMerge(t *testing.T) {
	store := testutil.NewFakeStore()
	// preflight healthy, first mid-merge probe below threshold
	store.FreeSeq = []uint64{10 << 30, 1 << 20}
	orch := New(store, nil, WithCheckpoint(2))

	report := importDump(orch, nonFictionSegment, catalog.FamilyUnknown)

	assert.Equal(t, StatusLowDiskSpace, report.Status)
	assert.Equal(t, int64(2), report.Added, "committed work before the abort is retained")
	assert.Equal(t, []int64{1, 2}, store.RemoteIDs(catalog.FamilyNonFiction))
}

func TestImportCancellationBetweenRecords(t *testing.T) {
	store := testutil.NewFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	sink := &cancelAfterCounters{cancel: cancel, after: 2}
	orch := New(store, sink, WithCheckpoint(1))

	text := nonFictionSegment + fictionSegment + articleSegment
	report := orch.ImportDump(ctx, strings.NewReader(text), int64(len(text)), catalog.FamilyUnknown)

	assert.Equal(t, StatusCancelled, report.Status)
	assert.Nil(t, report.Err, "cancellation is not an error")
	assert.Equal(t, int64(2), report.Added)
	assert.Equal(t, []int64{1, 2}, store.RemoteIDs(catalog.FamilyNonFiction))
	assert.Empty(t, store.RemoteIDs(catalog.FamilyFiction))
}

// cancelAfterCounters requests cancellation once the merge engine has
// reported a given number of absorbed records.
type cancelAfterCounters struct {
	cancel context.CancelFunc
	after  int64
}

func (s *cancelAfterCounters) Publish(ev progress.Event) {
	if counters, ok := ev.(progress.Counters); ok {
		if counters.Added+counters.Updated >= s.after {
			s.cancel()
		}
	}
}

func TestImportEmitsStructuralEvents(t *testing.T) {
	store := testutil.NewFakeStore()
	sink := testutil.NewSinkRecorder()
	orch := New(store, sink)

	report := importDump(orch, nonFictionSegment, catalog.FamilyUnknown)
	require.Equal(t, StatusCompleted, report.Status)

	var foundTable, createdIndex, summary bool
	for _, ev := range sink.Events() {
		switch e := ev.(type) {
		case progress.TableFound:
			foundTable = true
			assert.Equal(t, "updated", e.Table)
		case progress.IndexCreation:
			createdIndex = true
		case progress.Summary:
			summary = true
			assert.Equal(t, int64(3), e.Added)
		}
	}
	assert.True(t, foundTable)
	assert.True(t, createdIndex, "first import of an empty family must build its indexes")
	assert.True(t, summary)
}

func TestImportIndexesAreCreatedOnce(t *testing.T) {
	store := testutil.NewFakeStore()
	orch := New(store, nil)

	require.Equal(t, StatusCompleted, importDump(orch, nonFictionSegment, catalog.FamilyUnknown).Status)
	require.Equal(t, StatusCompleted, importDump(orch, nonFictionSegment, catalog.FamilyUnknown).Status)

	indexes, err := store.Indexes(context.Background(), catalog.FamilyNonFiction)
	require.NoError(t, err)
	assert.Len(t, indexes, 2, "re-imports must not rebuild existing indexes")
}
