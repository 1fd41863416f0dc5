// Command inspect is a visual step debugger: it runs a program through the
// tree-walking interpreter one statement at a time and renders, each frame,
// the position of the next statement, the register snapshot and the UART
// transmit-ready flag. The bytes the program writes to the UART and the
// state of the other peripherals are not displayed.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"regvm/pkg/compiler"
	"regvm/pkg/interp"
	"regvm/pkg/pipeline"
	"regvm/pkg/utils"
)

// session bridges the interpreter, which runs to completion on its own
// goroutine, with the ebiten game loop, which polls a snapshot every frame.
type session struct {
	mu        sync.Mutex
	pos       compiler.Position
	registers [32]uint32
	uart      interp.UARTState
	done      bool
	err       error

	advance chan struct{}
}

func newSession() *session {
	return &session{advance: make(chan struct{})}
}

func (s *session) run(machine *interp.Interpreter) {
	machine.StepHook = func(pos compiler.Position) {
		s.mu.Lock()
		s.pos = pos
		s.registers = machine.Registers()
		s.uart = machine.UART()
		s.mu.Unlock()
		<-s.advance
	}
	_, diag := machine.Run()
	s.mu.Lock()
	s.done = true
	if diag != nil {
		s.err = diag
	}
	s.mu.Unlock()
}

// Game implements ebiten.Game, single-stepping the session on each Space
// press and rendering its most recent snapshot.
type Game struct {
	sess *session
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		select {
		case g.sess.advance <- struct{}{}:
		default:
		}
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.sess.mu.Lock()
	defer g.sess.mu.Unlock()

	ebitenutil.DebugPrintAt(screen, fmt.Sprintf("at %s", g.sess.pos), 8, 8)
	if g.sess.done {
		ebitenutil.DebugPrintAt(screen, "program finished", 8, 24)
		if g.sess.err != nil {
			ebitenutil.DebugPrintAt(screen, g.sess.err.Error(), 8, 40)
		}
	} else {
		ebitenutil.DebugPrintAt(screen, "SPACE to step", 8, 24)
	}

	for i := 0; i < 32; i++ {
		row := i % 16
		col := i / 16
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("r%-2d=%d", i, g.sess.registers[i]), 8+col*160, 56+row*14)
	}

	status := "UART tx_ready=0"
	if g.sess.uart.TxReady {
		status = "UART tx_ready=1"
	}
	ebitenutil.DebugPrintAt(screen, status, 8, 300)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return 400, 320
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: inspect <path>")
		os.Exit(2)
	}

	path, err := utils.ResolveSourcePath(os.Args[1])
	if err != nil {
		log.Fatalf("cannot resolve %q: %v", os.Args[1], err)
	}

	program, err := pipeline.BuildAST(path)
	if err != nil {
		log.Fatalf("build failed: %v", err)
	}

	var out strings.Builder
	machine, diag := interp.New(program, func(b byte) { out.WriteByte(b) })
	if diag != nil {
		log.Fatalf("interpreter setup failed: %v", diag)
	}

	sess := newSession()
	go sess.run(machine)

	ebiten.SetWindowTitle("register inspector")
	ebiten.SetWindowSize(400, 320)
	if err := ebiten.RunGame(&Game{sess: sess}); err != nil {
		log.Fatal(err)
	}
}
