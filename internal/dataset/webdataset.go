package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("webdataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamShard streams paired samples from the WebDataset shard at path.
// Each sample is an image entry (.png/.jpg/.jpeg) and a .cls entry sharing a key;
// images are decoded to side×side grayscale.
func StreamShard(ctx context.Context, path string, side, pendingCap int) (<-chan Sample, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- fmt.Errorf("open shard: %w", err)
			return
		}
		defer f.Close()

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(map[string]*partial)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- fmt.Errorf("read tar: %w", err)
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, ext)

			switch ext {
			case ".jpg", ".jpeg", ".png":
				data, err := io.ReadAll(tr)
				if err != nil {
					errCh <- fmt.Errorf("read image %s: %w", name, err)
					return
				}
				pixels, err := DecodeImage(data, side)
				if err != nil {
					errCh <- fmt.Errorf("decode image %s: %w", name, err)
					return
				}
				pendingFor(pending, key).pixels = pixels
			case ".cls":
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- fmt.Errorf("read label %s: %w", name, err)
					return
				}
				label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
				if err != nil {
					errCh <- fmt.Errorf("parse label %s: %w", name, err)
					return
				}
				pendingFor(pending, key).label = &label
			default:
				continue
			}

			if len(pending) > pendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part := pending[key]; part.ready() {
				sample := Sample{Key: key, Pixels: part.pixels, Label: *part.label}
				delete(pending, key)
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- sample:
				}
			}
		}

		if len(pending) > 0 {
			errCh <- fmt.Errorf("%d samples incomplete", len(pending))
		}
	}()

	return out, errCh
}

type partial struct {
	pixels []float64
	label  *int
}

func (p *partial) ready() bool {
	return len(p.pixels) > 0 && p.label != nil
}

func pendingFor(pending map[string]*partial, key string) *partial {
	part := pending[key]
	if part == nil {
		part = &partial{}
		pending[key] = part
	}
	return part
}

// LoadShards reads every shard under root into memory, in shard-name order.
// Labels must lie in [0, classes).
func LoadShards(ctx context.Context, root string, side, classes int) (*Set, error) {
	shards, err := DiscoverShards(root)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards discovered under %s", root)
	}

	set := &Set{}
	for _, shard := range shards {
		if err := loadShard(ctx, shard, side, classes, set); err != nil {
			return nil, fmt.Errorf("%s: %w", shard, err)
		}
	}
	return set, nil
}

func loadShard(parent context.Context, shard string, side, classes int, set *Set) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	samples, errCh := StreamShard(ctx, shard, side, defaultPendingCap)
	for sample := range samples {
		if sample.Label < 0 || sample.Label >= classes {
			return fmt.Errorf("sample %s label %d out of range", sample.Key, sample.Label)
		}
		set.Append(sample)
	}
	return <-errCh
}
