package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayPNG(t *testing.T, side int, level uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.SetGray(x, y, color.Gray{Y: level})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

type shardEntry struct {
	key   string
	image []byte
	label string
}

func writeShard(t *testing.T, path string, entries []shardEntry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, e := range entries {
		if e.image != nil {
			addTarEntry(t, tw, e.key+".png", e.image)
		}
		addTarEntry(t, tw, e.key+".cls", []byte(e.label))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func addTarEntry(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	require.NoError(t, tw.WriteHeader(hdr))
	_, err := tw.Write(data)
	require.NoError(t, err)
}

func TestDecodeImageResamplesToGrid(t *testing.T) {
	pixels, err := DecodeImage(grayPNG(t, 64, 255), 32)
	require.NoError(t, err)
	require.Len(t, pixels, 32*32)
	for _, v := range pixels {
		assert.Equal(t, 1.0, v)
	}

	_, err = DecodeImage([]byte("not an image"), 32)
	assert.Error(t, err)
}

func TestStreamShardPairsEntries(t *testing.T) {
	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	writeShard(t, shard, []shardEntry{
		{key: "000001", image: grayPNG(t, 8, 0), label: "3"},
		{key: "000002", image: grayPNG(t, 8, 255), label: "7\n"},
	})

	samples, errCh := StreamShard(context.Background(), shard, 4, 4)
	var got []Sample
	for s := range samples {
		got = append(got, s)
	}
	require.NoError(t, <-errCh)
	require.Len(t, got, 2)
	assert.Equal(t, "000001", got[0].Key)
	assert.Equal(t, 3, got[0].Label)
	assert.Equal(t, 7, got[1].Label)
	assert.Len(t, got[1].Pixels, 16)
	assert.Equal(t, 1.0, got[1].Pixels[0])
}

func TestStreamShardReportsIncompleteSamples(t *testing.T) {
	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	writeShard(t, shard, []shardEntry{{key: "a", label: "1"}})

	samples, errCh := StreamShard(context.Background(), shard, 4, 4)
	for range samples {
	}
	assert.Error(t, <-errCh)
}

func TestLoadShardsAcrossDirectories(t *testing.T) {
	root := t.TempDir()
	var entries []shardEntry
	for i := 0; i < 3; i++ {
		entries = append(entries, shardEntry{key: "k" + strconv.Itoa(i), image: grayPNG(t, 4, 128), label: strconv.Itoa(i)})
	}
	writeShard(t, filepath.Join(root, "shard-000000.tar"), entries[:2])
	writeShard(t, filepath.Join(root, "nested", "shard-000001.tar"), entries[2:])

	set, err := LoadShards(context.Background(), root, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, 16, set.Width())
	assert.ElementsMatch(t, []int{0, 1, 2}, set.Labels)
}

func TestLoadShardsRejectsLabelOutOfRange(t *testing.T) {
	root := t.TempDir()
	writeShard(t, filepath.Join(root, "shard-000000.tar"), []shardEntry{
		{key: "a", image: grayPNG(t, 4, 1), label: "12"},
		{key: "b", image: grayPNG(t, 4, 1), label: "1"},
	})
	_, err := LoadShards(context.Background(), root, 4, 10)
	assert.Error(t, err)
}

func TestLoadShardsEmptyRoot(t *testing.T) {
	_, err := LoadShards(context.Background(), t.TempDir(), 4, 10)
	assert.Error(t, err)
}
