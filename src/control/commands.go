package control

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"game-overlay/src/desktop"
	"game-overlay/src/engine"
)

// Controller is the part of the engine the protocol drives.
type Controller interface {
	Show() error
	Hide() error
	CatchForeground() error
	UpdateAll() error
	TakeInput() error
	ReleaseInput() error
	AddWebView(url string, r desktop.Rect) (int, error)
	SetURL(id int, url string) error
	MoveOverlay(id, x, y int) error
	SetTransparency(id, level int) error
	Remove(id int) error
	Overlays() []engine.Info
	Count() int
	Status() engine.Status
}

// Commands maps protocol requests onto a Controller. Quit runs when a
// client asks the resident to exit; it must not block.
type Commands struct {
	Engine Controller
	Quit   func()
}

func (c *Commands) Handle(_ context.Context, req Request) (string, error) {
	switch req.Command {
	case CmdShow:
		return "", c.Engine.Show()
	case CmdHide:
		return "", c.Engine.Hide()
	case CmdCatch:
		return "", c.Engine.CatchForeground()
	case CmdUpdate:
		return "", c.Engine.UpdateAll()
	case CmdInput:
		return c.input(req.Args)
	case CmdAdd:
		return c.add(req.Args)
	case CmdList:
		return FormatOverlays(c.Engine.Overlays()), nil
	case CmdCount:
		return strconv.Itoa(c.Engine.Count()) + "\n", nil
	case CmdStatus:
		return c.Engine.Status().String() + "\n", nil
	case CmdRemove:
		ids, err := ints(req.Args, 1)
		if err != nil {
			return "", err
		}
		return "", c.Engine.Remove(ids[0])
	case CmdMove:
		v, err := ints(req.Args, 3)
		if err != nil {
			return "", err
		}
		return "", c.Engine.MoveOverlay(v[0], v[1], v[2])
	case CmdAlpha:
		v, err := ints(req.Args, 2)
		if err != nil {
			return "", err
		}
		return "", c.Engine.SetTransparency(v[0], v[1])
	case CmdURL:
		if len(req.Args) != 2 {
			return "", fmt.Errorf("usage: URL <id> <url>")
		}
		id, err := strconv.Atoi(req.Args[0])
		if err != nil {
			return "", fmt.Errorf("invalid id %q", req.Args[0])
		}
		return "", c.Engine.SetURL(id, req.Args[1])
	case CmdQuit:
		if c.Quit == nil {
			return "", fmt.Errorf("quit not supported")
		}
		c.Quit()
		return "", nil
	default:
		return "", fmt.Errorf("unknown command %q", req.Command)
	}
}

func (c *Commands) input(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: INPUT on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return "", c.Engine.TakeInput()
	case "off":
		return "", c.Engine.ReleaseInput()
	default:
		return "", fmt.Errorf("usage: INPUT on|off")
	}
}

// add handles "ADD <url> [x y width height]".
func (c *Commands) add(args []string) (string, error) {
	if len(args) != 1 && len(args) != 5 {
		return "", fmt.Errorf("usage: ADD <url> [x y width height]")
	}
	r := DefaultWebViewRect
	if len(args) == 5 {
		v, err := ints(args[1:], 4)
		if err != nil {
			return "", err
		}
		r = desktop.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	}
	id, err := c.Engine.AddWebView(args[0], r)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(id) + "\n", nil
}

// DefaultWebViewRect is used when ADD carries no geometry.
var DefaultWebViewRect = desktop.Rect{X: 100, Y: 100, Width: 800, Height: 600}

func ints(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d numeric arguments, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

// FormatOverlays renders one line per overlay.
func FormatOverlays(infos []engine.Info) string {
	var b strings.Builder
	for _, o := range infos {
		g := o.Geometry
		fmt.Fprintf(&b, "%d\t%s\t%s\t%d,%d %dx%d", o.ID, o.Kind, o.State, g.X, g.Y, g.Width, g.Height)
		if o.URL != "" {
			fmt.Fprintf(&b, "\t%s", o.URL)
		} else if o.Source != 0 {
			fmt.Fprintf(&b, "\t%#x", o.Source)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
