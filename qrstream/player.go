package qrstream

import (
	"bytes"
	"context"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/francoispqt/gojay"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// DefaultFPS is one frame every 200ms.
const DefaultFPS = 5.0

// PlayerOptions configures the HTTP frame player.
type PlayerOptions struct {
	FPS float64
	// Stream serves ever-increasing symbol indices instead of repeating the
	// N frames of one loop, so every pass brings fresh symbols.
	Stream   bool
	Renderer *Renderer
	Metrics  *Metrics
	Gatherer prometheus.Gatherer // exposed on /metrics when set
	Logger   logrus.FieldLogger
}

// Player serves the frames of one Encoder as QR images to a browser.
type Player struct {
	enc  *Encoder
	opts PlayerOptions
	log  logrus.FieldLogger

	gifMu sync.Mutex
	gif   []byte // rendered on first request; failures are not cached
}

func NewPlayer(enc *Encoder, opts PlayerOptions) *Player {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Renderer == nil {
		opts.Renderer = NewRenderer()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Player{enc: enc, opts: opts, log: opts.Logger}
}

func (p *Player) mode() string {
	if p.opts.Stream {
		return "stream"
	}
	return "loop"
}

// Router returns the player's routes.
func (p *Player) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", p.handleIndex).Methods("GET")
	r.HandleFunc("/session", p.handleSession).Methods("GET")
	r.HandleFunc("/frame/{n:[0-9]+}.png", p.handleFramePNG).Methods("GET")
	r.HandleFunc("/frame/{n:[0-9]+}.txt", p.handleFrameText).Methods("GET")
	r.HandleFunc("/loop.gif", p.handleGIF).Methods("GET")
	if p.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return r
}

// Serve listens on addr until ctx is done. With useTLS a self-signed
// certificate is generated for the listen host.
func (p *Player) Serve(ctx context.Context, addr string, useTLS bool) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if useTLS {
		host, _, _ := net.SplitHostPort(addr)
		conf, err := genSelfSigned(host)
		if err != nil {
			return err
		}
		srv.TLSConfig = conf
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	p.log.WithFields(logrus.Fields{
		"addr":    addr,
		"tls":     useTLS,
		"mode":    p.mode(),
		"session": p.enc.Session().ID,
	}).Info("player listening")
	var err error
	if useTLS {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// index maps the n-th displayed frame to a symbol index.
func (p *Player) index(n uint64) (uint32, bool) {
	if p.opts.Stream {
		if n > uint64(^uint32(0)) {
			return 0, false
		}
		return uint32(n), true
	}
	return uint32(n % uint64(p.enc.FrameCount())), true
}

func (p *Player) frameText(w http.ResponseWriter, r *http.Request) (string, bool) {
	n, err := strconv.ParseUint(mux.Vars(r)["n"], 10, 64)
	if err != nil {
		http.Error(w, "bad frame number", http.StatusBadRequest)
		return "", false
	}
	i, ok := p.index(n)
	if !ok {
		http.NotFound(w, r)
		return "", false
	}
	text, err := p.enc.Frame(i)
	if err != nil {
		p.log.WithError(err).WithField("index", i).Error("rendering frame")
		http.Error(w, "frame unavailable", http.StatusInternalServerError)
		return "", false
	}
	return text, true
}

func (p *Player) handleFramePNG(w http.ResponseWriter, r *http.Request) {
	text, ok := p.frameText(w, r)
	if !ok {
		return
	}
	png, err := p.opts.Renderer.PNG(text)
	if err != nil {
		p.log.WithError(err).Error("rendering qr")
		http.Error(w, "frame does not fit qr version", http.StatusInternalServerError)
		return
	}
	p.opts.Metrics.FramesServed.WithLabelValues(p.mode()).Inc()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (p *Player) handleFrameText(w http.ResponseWriter, r *http.Request) {
	text, ok := p.frameText(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(text + "\n"))
}

func (p *Player) loopGIF() ([]byte, error) {
	p.gifMu.Lock()
	defer p.gifMu.Unlock()
	if p.gif != nil {
		return p.gif, nil
	}
	// shared by every client, so no single request may cancel it
	frames, err := p.enc.Frames(context.Background())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := p.opts.Renderer.WriteGIF(&buf, frames, p.opts.FPS); err != nil {
		return nil, err
	}
	p.gif = buf.Bytes()
	return p.gif, nil
}

func (p *Player) handleGIF(w http.ResponseWriter, _ *http.Request) {
	b, err := p.loopGIF()
	if err != nil {
		p.log.WithError(err).Error("rendering gif")
		http.Error(w, "gif unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/gif")
	_, _ = w.Write(b)
}

type sessionInfo struct {
	s      *Session
	n      int
	fps    float64
	stream bool
}

func (si *sessionInfo) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("sid", si.s.ID)
	enc.StringKey("scheme", si.s.Scheme.String())
	enc.IntKey("len", si.s.TotalLen)
	enc.IntKey("K", si.s.K)
	enc.IntKey("cs", si.s.ChunkSize)
	enc.IntKey("n", si.n)
	enc.Float64Key("fps", si.fps)
	enc.BoolKey("stream", si.stream)
}

func (si *sessionInfo) IsNil() bool { return si == nil }

func (p *Player) handleSession(w http.ResponseWriter, _ *http.Request) {
	b, err := gojay.MarshalJSONObject(&sessionInfo{s: p.enc.Session(), n: p.enc.FrameCount(), fps: p.opts.FPS, stream: p.opts.Stream})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (p *Player) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTmpl.Execute(w, struct {
		IntervalMS int
		FPS        float64
		Version    int
		Mode       string
		N          int
	}{
		IntervalMS: int(1000 / p.opts.FPS),
		FPS:        p.opts.FPS,
		Version:    p.opts.Renderer.Version,
		Mode:       p.mode(),
		N:          p.enc.FrameCount(),
	})
	if err != nil {
		p.log.WithError(err).Error("rendering index")
	}
}

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="en">
<meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>QR Stream Player</title>
<style>
  body { margin:0; background:#111; color:#eee; font-family:system-ui,Segoe UI,Roboto,Arial,sans-serif; }
  main { display:flex; align-items:center; justify-content:center; min-height:100vh; flex-direction:column; gap:12px; }
  img.qr { width: min(92vmin, 900px); height: auto; image-rendering: pixelated; image-rendering: crisp-edges; }
  .info { opacity:.8; font-size:.9em; }
</style>
<main>
  <img class="qr" id="qr" src="/frame/0.png" alt="QR stream" />
  <div class="info">QR stream (v={{.Version}}, fps={{.FPS}}, {{.Mode}}, {{.N}} frames per loop). Keep the phone steady and fill the frame.</div>
</main>
<script>
  let n = 0;
  const img = document.getElementById("qr");
  setInterval(() => { n++; img.src = "/frame/" + n + ".png"; }, {{.IntervalMS}});
</script>
</html>
`))
