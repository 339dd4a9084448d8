package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Go_Drop/model"
)

func TestChunkRecorderUpsertsPerIndex(t *testing.T) {
	db := newTestDB(t)
	r := NewChunkRecorder(db)
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for _, size := range []int64{10, 20} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := <-r.Record(model.ChunkRecord{UploadID: "u1", ChunkIndex: i, ChunkSize: size, ChunkPath: "/tmp/x"})
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()
	r.Wait("u1")

	var rows []model.ChunkRecord
	require.NoError(t, db.Where("upload_id = ?", "u1").Order("chunk_index").Find(&rows).Error)
	require.Len(t, rows, 4)
	for i, row := range rows {
		assert.Equal(t, i, row.ChunkIndex)
	}
}

func TestChunkRecorderReportsFailures(t *testing.T) {
	db := newTestDB(t)
	r := NewChunkRecorder(db)
	r.maxRetries = 1
	r.interval = 0
	require.NoError(t, db.Migrator().DropTable(&model.ChunkRecord{}))

	err := <-r.Record(model.ChunkRecord{UploadID: "u2", ChunkIndex: 0})
	assert.Error(t, err)
	r.Wait("u2")
	r.Close()
}
