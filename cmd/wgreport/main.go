// Command wgreport creates a Global, optionally opens a device and fills
// it with a few resources, then prints the occupancy of every registry.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wgcore"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		format     = flag.String("format", "text", "output format: json, yaml or text")
		verbose    = flag.Bool("v", false, "log to stderr")
	)
	flag.Parse()

	if *verbose {
		wgcore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	c, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := run(os.Stdout, c, *format); err != nil {
		log.Fatal(err)
	}
}

func run(w io.Writer, c config, format string) error {
	backends, err := c.backends()
	if err != nil {
		return err
	}
	g := wgcore.New(c.Name, wgcore.WithBackends(backends...))
	defer g.Destroy()

	if c.Device {
		if err := populate(g, &c); err != nil {
			return err
		}
	}
	return writeReport(w, format, g.GenerateReport())
}

// populate opens a device and creates the configured resources. They are
// left alive so the report counts them.
func populate(g *wgcore.Global, c *config) error {
	adapter, err := g.RequestAdapter(nil, 0)
	if err != nil {
		return err
	}
	tbl := wgcore.FromBackend(adapter.Backend())
	device, _, err := tbl.AdapterRequestDevice(g, adapter, &wgcore.DeviceDescriptor{Label: c.Name}, 0, 0)
	if err != nil {
		return err
	}
	wgcore.Logger().Info("wgreport: device opened", "backend", adapter.Backend(), "device", device)

	for i := range c.Buffers {
		_, err := tbl.DeviceCreateBuffer(g, device, &wgcore.BufferDescriptor{
			Label: fmt.Sprintf("buffer %d", i),
			Size:  256,
			Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead,
		}, 0)
		if err != nil {
			return err
		}
	}
	for i := range c.Textures {
		_, err := tbl.DeviceCreateTexture(g, device, &wgcore.TextureDescriptor{
			Label:     fmt.Sprintf("texture %d", i),
			Size:      wgcore.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
			Dimension: gputypes.TextureDimension2D,
			Format:    gputypes.TextureFormatRGBA8Unorm,
			Usage:     gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		}, 0)
		if err != nil {
			return err
		}
	}
	for i := range c.Samplers {
		_, err := tbl.DeviceCreateSampler(g, device, &wgcore.SamplerDescriptor{
			Label:       fmt.Sprintf("sampler %d", i),
			MagFilter:   gputypes.FilterModeLinear,
			MinFilter:   gputypes.FilterModeLinear,
			LodMaxClamp: 32,
		}, 0)
		if err != nil {
			return err
		}
	}
	for i := range c.Invalid {
		tbl.CreateBufferError(g, 0, fmt.Sprintf("invalid %d", i), wgcore.ErrInvalidUsage)
	}
	return nil
}
