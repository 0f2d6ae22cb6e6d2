// Command gridctl inspects EGM96 grid files and manages the grid shared
// between API replicas.
//
//	gridctl verify <path>               decode a grid file and print its stats
//	gridctl offset <path> <lat> <lon>   print the undulation at a point
//	gridctl pack <path> <out.zst>       write a zstd-compressed copy
//	gridctl seed <path>                 store the grid in valkey (grid.valkey_key)
//	gridctl unseed                      remove the grid from valkey
//	gridctl reload                      ask every API replica to reload over NATS
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	natsadapter "github.com/samirrijal/egm96/internal/adapters/nats"
	"github.com/samirrijal/egm96/internal/adapters/valkey"
	"github.com/samirrijal/egm96/internal/pkg/config"
	"github.com/samirrijal/egm96/internal/pkg/geoid"
	"github.com/samirrijal/egm96/internal/pkg/logging"
	"github.com/samirrijal/egm96/internal/pkg/zstdcodec"
)

const usage = "usage: gridctl <verify|offset|pack|seed|unseed|reload> [args]"

var errUsage = errors.New(usage)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}

	switch args[0] {
	case "verify":
		if len(args) != 2 {
			return errUsage
		}
		return verify(args[1], out)
	case "offset":
		if len(args) != 4 {
			return errUsage
		}
		return offset(args[1], args[2], args[3], out)
	case "pack":
		if len(args) != 3 {
			return errUsage
		}
		return pack(args[1], args[2], out)
	case "seed", "unseed", "reload":
		cfg, err := config.Load("egm96-gridctl")
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if args[0] == "reload" {
			pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
			if err != nil {
				return err
			}
			defer pub.Close()
			if err := pub.PublishReloadRequest(ctx); err != nil {
				return fmt.Errorf("publish reload: %w", err)
			}
			logger.Info("reload broadcast", "subject", natsadapter.SubjectReload)
			return nil
		}

		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			return err
		}
		defer cache.Close()
		store := valkey.NewGridStore(cache, cfg.Grid.ValkeyKey)

		if args[0] == "unseed" {
			if err := store.DeleteGrid(ctx); err != nil {
				return err
			}
			logger.Info("grid removed", "key", cfg.Grid.ValkeyKey)
			return nil
		}

		if len(args) != 2 {
			return errUsage
		}
		raw, err := readRaw(args[1])
		if err != nil {
			return err
		}
		st, err := store.PutGrid(ctx, raw)
		if err != nil {
			return err
		}
		logger.Info("grid stored", "key", cfg.Grid.ValkeyKey, "fingerprint", fmt.Sprintf("%016x", st.Fingerprint))
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// readRaw returns the uncompressed grid file contents of path.
func readRaw(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if zstdcodec.IsCompressed(data) {
		return zstdcodec.Decompress(data, geoid.FileSize+1)
	}
	return data, nil
}

func load(path string) (*geoid.Grid, []byte, error) {
	raw, err := readRaw(path)
	if err != nil {
		return nil, nil, err
	}
	g, err := geoid.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, raw, nil
}

func verify(path string, out io.Writer) error {
	g, _, err := load(path)
	if err != nil {
		return err
	}
	st := g.Stats()
	fmt.Fprintf(out, "OK  %s\n", path)
	fmt.Fprintf(out, "rows=%d cols=%d interval=%g\n", geoid.Rows, geoid.Cols, geoid.Interval)
	fmt.Fprintf(out, "min=%.2fm max=%.2fm fingerprint=%016x\n", float64(st.MinCM)/100, float64(st.MaxCM)/100, st.Fingerprint)
	return nil
}

func offset(path, latArg, lonArg string, out io.Writer) error {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil {
		return fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil {
		return fmt.Errorf("lon: %w", err)
	}
	g, _, err := load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%.3f\n", geoid.NewInterpolator(g).OffsetAt(lat, lon))
	return nil
}

func pack(path, dst string, out io.Writer) error {
	_, raw, err := load(path)
	if err != nil {
		return err
	}
	packed, err := zstdcodec.Compress(raw)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, packed, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "OK  %s (%d -> %d bytes)\n", dst, len(raw), len(packed))
	return nil
}
