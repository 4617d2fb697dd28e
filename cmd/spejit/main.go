/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
/*
	spejit compiles cilasm method sources into a linked SPE instruction
	image.
*/
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dc0d/onexit"
	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/opencell/spejit/asm"
	"github.com/opencell/spejit/codegen"
	"github.com/opencell/spejit/elfimage"
	"github.com/opencell/spejit/link"
)

func main() {
	fmt.Print(`spejit Copyright (C) 2024-2026   Carl-Philip Hänsch
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;

`)

	out := flag.String("out", "a.spe", "raw big-endian instruction image output path")
	dis := flag.String("disasm", "", "disassembly text output path (empty = skip)")
	elfOut := flag.String("elf", "", "ELF64 container output path (empty = skip)")
	compress := flag.String("compress", "", "LZ4-compressed image output path (empty = skip)")
	serve := flag.String("serve", "", "address to serve a websocket debug stream on, e.g. :8081 (empty = don't serve)")
	watch := flag.Bool("watch", false, "recompile automatically whenever an input source changes")
	flag.Parse()

	sources := flag.Args()
	if len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "usage: spejit [flags] method.asm [method.asm ...]")
		os.Exit(2)
	}

	var debugStream *debugBroadcaster
	if *serve != "" {
		debugStream = newDebugBroadcaster()
		go serveDebugStream(*serve, debugStream)
	}

	build := func() {
		onMethod := func(name string, instrCount int, err error) {
			if debugStream == nil {
				return
			}
			if err != nil {
				debugStream.Broadcast(fmt.Sprintf("method %s: error: %v", name, err))
			} else {
				debugStream.Broadcast(fmt.Sprintf("method %s: %d instructions", name, instrCount))
			}
		}
		img, err := compileAndLink(sources, onMethod)
		if err != nil {
			fmt.Fprintln(os.Stderr, "build failed:", err)
			return
		}
		if err := writeOutputs(img, *out, *dis, *elfOut, *compress); err != nil {
			fmt.Fprintln(os.Stderr, "write failed:", err)
			return
		}
		fmt.Printf("linked %d instructions, entry at offset %d, build %s\n", img.Buffer.Len(), img.EntryOffset, img.BuildID)
		if debugStream != nil {
			debugStream.Broadcast(fmt.Sprintf("build %s complete: %d instructions, entry at %d", img.BuildID, img.Buffer.Len(), img.EntryOffset))
		}
	}

	build()

	if *watch {
		watchAndRebuild(sources, build)
	}

	// install exit handler so a background -serve listener or -watch
	// loop still gets a chance to drain before the process dies.
	onexit.Register(func() { fmt.Println("spejit shutting down") })
	if *serve != "" || *watch {
		cancelChan := make(chan os.Signal, 1)
		signal.Notify(cancelChan, syscall.SIGTERM, syscall.SIGINT)
		<-cancelChan
	}
}

// onMethodCompiled, when non-nil, is notified after each source file's
// method is compiled (or fails to compile) so -serve can stream
// per-method compile events to a connected debug client as the batch
// progresses, rather than waiting for the whole link to finish.
func compileAndLink(sources []string, onMethodCompiled func(name string, instrCount int, err error)) (*link.Image, error) {
	var compiled []*codegen.CompiledMethod
	for _, path := range sources {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		method, err := asm.Parse(string(src))
		if err != nil {
			if onMethodCompiled != nil {
				onMethodCompiled(path, 0, err)
			}
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		cm, err := codegen.NewMethodCompiler().CompileMethod(method)
		if err != nil {
			if onMethodCompiled != nil {
				onMethodCompiled(method.Name, 0, err)
			}
			return nil, fmt.Errorf("compiling %s: %w", path, err)
		}
		if onMethodCompiled != nil {
			onMethodCompiled(method.Name, cm.Buffer.Len(), nil)
		}
		compiled = append(compiled, cm)
	}
	return link.NewLinker().Link(compiled)
}

func writeOutputs(img *link.Image, rawPath, disPath, elfPath, compressPath string) error {
	rawFile, err := os.Create(rawPath)
	if err != nil {
		return err
	}
	defer rawFile.Close()
	if err := img.WriteRaw(rawFile); err != nil {
		return err
	}

	if disPath != "" {
		disFile, err := os.Create(disPath)
		if err != nil {
			return err
		}
		defer disFile.Close()
		if err := img.WriteDisassembly(disFile); err != nil {
			return err
		}
	}

	if elfPath != "" {
		elfFile, err := os.Create(elfPath)
		if err != nil {
			return err
		}
		defer elfFile.Close()
		if _, err := elfFile.Write(elfimage.Build(img, elfimage.DefaultOptions())); err != nil {
			return err
		}
	}

	if compressPath != "" {
		compFile, err := os.Create(compressPath)
		if err != nil {
			return err
		}
		defer compFile.Close()
		summary, err := img.WriteCompressed(compFile)
		if err != nil {
			return err
		}
		fmt.Println(summary)
	}

	return nil
}

// watchAndRebuild sets up one fsnotify.Watcher per input file, a
// debounce loop that drains bursts of editor-rename events before
// rereading, and re-adds the watch after each
// event since some editors replace the file (and its inode) on save.
func watchAndRebuild(sources []string, build func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		panic(err)
	}
	for _, path := range sources {
		if err := watcher.Add(path); err != nil {
			panic(err)
		}
	}
	go func() {
		for {
			<-watcher.Events
			for {
				time.Sleep(10 * time.Millisecond)
				select {
				case <-watcher.Events:
				default:
					goto rebuild
				}
			}
		rebuild:
			fmt.Println("source changed, recompiling...")
			build()
			for _, path := range sources {
				watcher.Add(path)
			}
		}
	}()
}

// debugBroadcaster fans the latest disassembly text out to every
// connected websocket client, grounded on scm/network.go's
// HTTPServe "websocket" endpoint (upgrade, write loop, close
// handling), reworked from a scripted callback pair into a plain
// broadcast since spejit has no embedded scripting layer of its own.
type debugBroadcaster struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newDebugBroadcaster() *debugBroadcaster {
	return &debugBroadcaster{clients: make(map[*websocket.Conn]struct{})}
}

func (d *debugBroadcaster) add(c *websocket.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c] = struct{}{}
}

func (d *debugBroadcaster) remove(c *websocket.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.clients, c)
}

func (d *debugBroadcaster) Broadcast(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.clients {
		if err := c.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			c.Close()
			delete(d.clients, c)
		}
	}
}

var upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}

func serveDebugStream(addr string, d *debugBroadcaster) {
	upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	mux := http.NewServeMux()
	mux.HandleFunc("/debug", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		d.add(conn)
		defer func() {
			d.remove(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	server := &http.Server{
		Addr:           addr,
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	if err := server.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, "debug stream server stopped:", err)
	}
}
