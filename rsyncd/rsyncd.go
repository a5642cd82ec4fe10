// Package rsyncd implements the legacy ASCII daemon protocol: the
// listening-socket entry point a peer reaches with
// `rsync rsync://host/module`, as opposed to the remote-shell transport
// rsyncclient drives over an already-spawned pipe.
//
// The greeting dance, module listing and ACL checking are grounded on
// the teacher's rsyncd.go (HandleDaemonConn/checkACL/formatModuleList);
// everything past "@RSYNCD: OK" is rewired onto this engine's own
// internal/negotiate, internal/handshake, generator and receiver
// packages instead of the teacher's internal/sender and
// internal/rsyncopts.
package rsyncd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os/user"
	"strconv"
	"strings"

	getoptions "github.com/DavidGamba/go-getoptions"

	"github.com/oferchen/rsync-sub007/generator"
	"github.com/oferchen/rsync-sub007/internal/compress"
	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/handshake"
	"github.com/oferchen/rsync-sub007/internal/rsyncdconfig"
	"github.com/oferchen/rsync-sub007/internal/rsyncflags"
	"github.com/oferchen/rsync-sub007/internal/rsyncos"
	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
	"github.com/oferchen/rsync-sub007/internal/rsyncwire"
	"github.com/oferchen/rsync-sub007/receiver"
)

// Module is a named export of a filesystem subtree, the daemon's unit
// of access control.
type Module = rsyncdconfig.Module

// defaultCompatMask is the compat bitset this server requests whenever
// the negotiated protocol is new enough to exchange one (>= 30): varint
// flist flags (and the algorithm negotiation it gates), incremental
// recursion and the safe-file-list end marker.
const defaultCompatMask = rsyncflags.IncRecurse | rsyncflags.SafeFileList | rsyncflags.VarintFlistFlags

// defaultChecksumPrefs is the server's checksum-algorithm preference
// order; as the daemon side this order wins ties (spec/handshake
// firstMutual semantics).
var defaultChecksumPrefs = []digest.Algorithm{digest.MD5, digest.SHA1, digest.MD4}

// defaultCompressionPrefs is the server's compression-algorithm
// preference order (spec §4.8/§4.12); as the daemon side this order
// wins ties (handshake firstMutual semantics), same as
// defaultChecksumPrefs.
var defaultCompressionPrefs = []compress.Algorithm{compress.Zstd, compress.Zlib, compress.Lz4}

// Option configures a Server at construction time.
type Option interface{ apply(*Server) }

type optionFunc func(*Server)

func (f optionFunc) apply(s *Server) { f(s) }

// WithEnv overrides the default stderr-logging Env, e.g. for tests that
// want to capture log output.
func WithEnv(env *rsyncos.Env) Option {
	return optionFunc(func(s *Server) { s.env = env })
}

// WithMaxProtocol caps the protocol version this daemon advertises,
// mainly useful for tests exercising older-protocol code paths.
func WithMaxProtocol(v rsyncversion.ProtocolVersion) Option {
	return optionFunc(func(s *Server) { s.maxProtocol = v })
}

// Server is a legacy rsync daemon: a fixed module table plus the
// connection handling needed to serve them.
type Server struct {
	modules     []Module
	env         *rsyncos.Env
	maxProtocol rsyncversion.ProtocolVersion
}

// NewServer validates modules and returns a Server ready to Serve
// connections or handle them one at a time via HandleConn.
func NewServer(modules []Module, opts ...Option) (*Server, error) {
	seen := make(map[string]bool, len(modules))
	for _, mod := range modules {
		if err := validateModule(mod); err != nil {
			return nil, err
		}
		if seen[mod.Name] {
			return nil, fmt.Errorf("rsyncd: duplicate module name %q", mod.Name)
		}
		seen[mod.Name] = true
	}

	s := &Server{
		modules:     modules,
		maxProtocol: rsyncversion.Newest,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	if s.env == nil {
		s.env = rsyncos.New(nil, nil, nil)
	}
	return s, nil
}

func validateModule(mod Module) error {
	if mod.Name == "" {
		return fmt.Errorf("rsyncd: module has no name")
	}
	if mod.Path == "" {
		return fmt.Errorf("rsyncd: module %q has empty path", mod.Name)
	}
	return nil
}

func (s *Server) getModule(name string) (Module, error) {
	for _, mod := range s.modules {
		if mod.Name == name {
			return mod, nil
		}
	}
	return Module{}, fmt.Errorf("no such module: %s", name)
}

func (s *Server) formatModuleList() string {
	var list strings.Builder
	for _, mod := range s.modules {
		fmt.Fprintf(&list, "%s\t%s\n", mod.Name, mod.Name)
	}
	return list.String()
}

// checkACL walks acls in order, the first matching "allow"/"deny" rule
// deciding the outcome; an empty list allows everyone. Grounded
// verbatim on the teacher's checkACL (internal/rsyncd/rsyncd.go), which
// already matches this engine's TOML-sourced []string rule format.
func checkACL(acls []string, remoteAddr net.Addr) error {
	if len(acls) == 0 {
		return nil
	}
	host, _, err := net.SplitHostPort(remoteAddr.String())
	if err != nil {
		return fmt.Errorf("rsyncd: invalid remote address %q", remoteAddr.String())
	}
	remoteIP := net.ParseIP(host)
	if remoteIP == nil {
		return fmt.Errorf("rsyncd: invalid remote host %q", host)
	}
	for _, acl := range acls {
		i := strings.Index(acl, " ")
		if i < 0 {
			return fmt.Errorf("invalid acl: %q (no space found)", acl)
		}
		action, who := acl[:i], acl[i+len(" "):]
		if action != "allow" && action != "deny" {
			return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
		}
		if who != "all" {
			_, ipnet, err := net.ParseCIDR(who)
			if err != nil {
				return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
			}
			if !ipnet.Contains(remoteIP) {
				continue
			}
		}
		if action == "allow" {
			return nil
		}
		return fmt.Errorf("access denied (acl %q)", acl)
	}
	return nil
}

// Serve accepts connections on ln until ctx is done, handling each on
// its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		remoteAddr := conn.RemoteAddr()
		s.env.VerboseLogf("rsyncd: connection from %s", remoteAddr)
		go func() {
			defer conn.Close()
			if err := s.HandleConn(conn, remoteAddr); err != nil {
				s.env.Logf("rsyncd: [%s] %v", remoteAddr, err)
			}
		}()
	}
}

// readWriter glues a buffered text-protocol reader back to the raw
// connection writer so the same conn can drive both the line-oriented
// greeting and the binary handshake/transfer phases without discarding
// whatever the bufio.Reader has already buffered ahead.
type readWriter struct {
	io.Reader
	io.Writer
}

// HandleConn drives one daemon connection end to end: the "@RSYNCD:"
// greeting and module/ACL dance, the post-greeting handshake setup, and
// dispatch into the generator or receiver role depending on what the
// client requested.
func (s *Server) HandleConn(conn io.ReadWriter, remoteAddr net.Addr) error {
	br := bufio.NewReader(conn)

	if _, err := fmt.Fprintf(conn, "@RSYNCD: %d\n", s.maxProtocol.Int()); err != nil {
		return fmt.Errorf("rsyncd: writing greeting: %w", err)
	}

	clientLine, err := readLine(br)
	if err != nil {
		return fmt.Errorf("rsyncd: reading client greeting: %w", err)
	}
	greeting, err := handshake.ParseLegacyGreeting(clientLine)
	if err != nil {
		return fmt.Errorf("rsyncd: parsing client greeting: %w", err)
	}
	negotiated, err := rsyncversion.Clamp(greeting.Major)
	if err != nil {
		return fmt.Errorf("rsyncd: %w", err)
	}
	if negotiated > s.maxProtocol {
		negotiated = s.maxProtocol
	}

	requestLine, err := readLine(br)
	if err != nil {
		return fmt.Errorf("rsyncd: reading module request: %w", err)
	}
	requestedModule := strings.TrimSpace(requestLine)
	if requestedModule == "" || requestedModule == "#list" {
		s.env.VerboseLogf("rsyncd: %s requested module listing", remoteAddr)
		io.WriteString(conn, s.formatModuleList())
		io.WriteString(conn, "@RSYNCD: EXIT\n")
		return nil
	}

	s.env.VerboseLogf("rsyncd: %s requested module %q", remoteAddr, requestedModule)
	module, err := s.getModule(requestedModule)
	if err != nil {
		fmt.Fprintf(conn, "@ERROR: Unknown module %q\n", requestedModule)
		return err
	}
	if err := checkACL(module.ACL, remoteAddr); err != nil {
		fmt.Fprintf(conn, "@ERROR: %v\n", err)
		return err
	}
	io.WriteString(conn, "@RSYNCD: OK\n")

	var rawArgs []string
	for {
		line, err := readLine(br)
		if err != nil {
			return fmt.Errorf("rsyncd: reading flag line: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		rawArgs = append(rawArgs, line)
	}

	req, err := parseServerArgs(rawArgs)
	if err != nil {
		fmt.Fprintf(conn, "@ERROR: %v\n", err)
		return fmt.Errorf("rsyncd: parsing server args: %w", err)
	}
	if len(req.paths) == 0 {
		err := fmt.Errorf("invalid args: at least one directory required")
		fmt.Fprintf(conn, "@ERROR: %v\n", err)
		return err
	}

	// Strip the module_name/ prefix out of the paths the way
	// rsync/io.c:glob_expand_module does.
	paths := make([]string, len(req.paths))
	for i, p := range req.paths {
		trimmed := strings.TrimPrefix(p, module.Name)
		if trimmed == "" {
			trimmed = "."
		}
		paths[i] = strings.TrimPrefix(trimmed, "/")
		if paths[i] == "" {
			paths[i] = "."
		}
	}

	if !req.isSender && !module.Writable {
		err := fmt.Errorf("module is read only")
		fmt.Fprintf(conn, "@ERROR: %v\n", err)
		return err
	}

	rw := readWriter{Reader: br, Writer: conn}
	res, err := handshake.Setup(rw, handshake.Config{
		Role:              handshake.RoleServer,
		Mode:              handshake.ModeLegacyDaemon,
		MaxProtocol:       s.maxProtocol,
		RequestCompatMask: defaultCompatMask,
		ChecksumPrefs:     defaultChecksumPrefs,
		WantCompression:   true,
		CompressionPrefs:  defaultCompressionPrefs,
	}, negotiated)
	if err != nil {
		return fmt.Errorf("rsyncd: handshake setup: %w", err)
	}

	env := s.env
	env.Verbose = req.verbose

	if req.isSender {
		return s.runSender(rw, env, res, module, paths, req.numericIDs)
	}
	return s.runReceiver(rw, env, res, module, req.numericIDs)
}

// runSender plays the generator role: this process reads the peer's
// per-file requests plainly and writes responses multiplexed, since
// multiplexing tracks the sender/generator role rather than client/
// server identity (spec §4.6/§4.10; diverges from the teacher's
// "only server-side transmissions are multiplexed" comment, which
// happened to be equivalent only because the teacher's rsyncd always
// played sender when acting as a daemon peer).
func (s *Server) runSender(rw readWriter, env *rsyncos.Env, res handshake.Result, module Module, paths []string, numericIDs bool) error {
	fl, err := generator.BuildFileList(modulePaths(module, paths), true)
	if err != nil {
		return fmt.Errorf("rsyncd: building file list: %w", err)
	}
	uids, gids := generator.CollectIDLists(fl, numericIDs, resolveUserName, resolveGroupName)

	rawOut := rsyncwire.NewWriter(rw.Writer)
	dataOut := rsyncwire.NewDataWriter(rawOut)

	var compressedOut io.Writer = dataOut
	if alg := compressionAlgorithm(res); alg != compress.None {
		fw, err := compress.NewFlushingWriter(alg, dataOut)
		if err != nil {
			return fmt.Errorf("rsyncd: building %s compressor: %w", alg, err)
		}
		defer fw.Close()
		compressedOut = fw
	}

	if err := generator.SendFileList(compressedOut, fl, res.CompatFlags, res.Protocol.Int(), uids, gids, numericIDs); err != nil {
		return fmt.Errorf("rsyncd: sending file list: %w", err)
	}

	gen := generator.New(generator.Config{
		Protocol:     res.Protocol,
		CompatFlags:  res.CompatFlags,
		ChecksumAlg:  checksumAlgorithm(res),
		ChecksumSeed: res.ChecksumSeed,
		NumericIDs:   numericIDs,
		Env:          env,
	})
	stats, err := gen.Run(rw.Reader, compressedOut, rawOut, fl)
	if err != nil {
		return fmt.Errorf("rsyncd: sender transfer: %w", err)
	}
	env.VerboseLogf("rsyncd: sender done, stats: %+v", stats)
	return nil
}

// runReceiver plays the receiver role: requests are written plainly and
// responses are read demultiplexed.
func (s *Server) runReceiver(rw readWriter, env *rsyncos.Env, res handshake.Result, module Module, numericIDs bool) error {
	mux := rsyncwire.NewReader(rw.Reader, nil)
	destRoot := module.Path

	var dataIn io.Reader = mux
	if alg := compressionAlgorithm(res); alg != compress.None {
		r, err := compress.NewReader(alg, mux)
		if err != nil {
			return fmt.Errorf("rsyncd: building %s decompressor: %w", alg, err)
		}
		dataIn = r
	}

	fl, _, _, err := receiver.RecvFileList(dataIn, res.CompatFlags, res.Protocol.Int(), numericIDs, destRoot)
	if err != nil {
		return fmt.Errorf("rsyncd: receiving file list: %w", err)
	}

	rv := receiver.New(receiver.Config{
		Protocol:     res.Protocol,
		CompatFlags:  res.CompatFlags,
		ChecksumAlg:  checksumAlgorithm(res),
		ChecksumSeed: res.ChecksumSeed,
		DestRoot:     destRoot,
		Env:          env,
	})
	stats, err := rv.Run(dataIn, mux, rw.Writer, fl)
	if err != nil {
		return fmt.Errorf("rsyncd: receiver transfer: %w", err)
	}
	env.VerboseLogf("rsyncd: receiver done, stats: %+v", stats)
	return nil
}

// checksumAlgorithm returns the negotiated checksum algorithm, falling
// back to classic MD4 when the peer's protocol was too old to run
// algorithm negotiation at all (VARINT_FLIST_FLAGS ungated, protocol <
// 30).
func checksumAlgorithm(res handshake.Result) digest.Algorithm {
	if res.Algorithms != nil {
		return res.Algorithms.Checksum
	}
	return digest.MD4
}

// compressionAlgorithm returns the negotiated compression algorithm, or
// compress.None when the peer's protocol was too old to negotiate one.
func compressionAlgorithm(res handshake.Result) compress.Algorithm {
	if res.Algorithms != nil {
		return res.Algorithms.Compression
	}
	return compress.None
}

// modulePaths joins module.Path with each relative path the client
// requested, since generator.BuildFileList walks real filesystem paths.
func modulePaths(module Module, relPaths []string) []string {
	out := make([]string, len(relPaths))
	for i, p := range relPaths {
		if p == "." {
			out[i] = module.Path
			continue
		}
		out[i] = module.Path + "/" + p
	}
	return out
}

func resolveUserName(uid int32) string {
	u, err := user.LookupId(strconv.Itoa(int(uid)))
	if err != nil {
		return ""
	}
	return u.Username
}

func resolveGroupName(gid int32) string {
	g, err := user.LookupGroupId(strconv.Itoa(int(gid)))
	if err != nil {
		return ""
	}
	return g.Name
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// serverArgs is the minimal subset of the classic "--server ..." flag
// line this daemon actually acts on; everything else rsync's CLI
// understands is parsed-and-discarded (spec's explicit CLI non-goal),
// but the bundled short-flag string (e.g. "-logDtpr") still has to be
// split correctly to find the flags that matter.
type serverArgs struct {
	isSender   bool
	numericIDs bool
	verbose    bool
	paths      []string
}

// parseServerArgs splits the bundled legacy flag line the way a real
// rsync client sends it ("--server", "--sender", "-logDtpr", ".",
// "dir") using go-getoptions' short-flag bundling support rather than
// hand-rolling a getopt clone, and returns the positional path
// arguments (everything after the leading ".").
func parseServerArgs(args []string) (serverArgs, error) {
	opt := getoptions.New()
	opt.SetMode(getoptions.Bundling)

	serverFlag := opt.Bool("server", false)
	senderFlag := opt.Bool("sender", false)
	numericIDsFlag := opt.Bool("numeric-ids", false)
	verboseFlag := opt.Bool("v", false, opt.Alias("verbose"))
	// Flags real rsync always sends on the "--server" line that this
	// engine doesn't act on but must still consume so they aren't
	// mistaken for positional arguments.
	for _, name := range []string{"l", "o", "g", "D", "t", "p", "r", "e", "x", "H", "A", "X", "S", "z"} {
		opt.Bool(name, false)
	}

	remaining, err := opt.Parse(args)
	if err != nil {
		return serverArgs{}, err
	}
	_ = serverFlag // --server is implied by reaching this code path at all

	var paths []string
	for i, tok := range remaining {
		if i == 0 && tok == "." {
			continue
		}
		if strings.HasPrefix(tok, "e.") {
			// The rsh-command placeholder ("-e.Ls" etc) real clients
			// emit isn't meaningful to a socket daemon; skip it.
			continue
		}
		paths = append(paths, tok)
	}

	return serverArgs{
		isSender:   *senderFlag,
		numericIDs: *numericIDsFlag,
		verbose:    *verboseFlag,
		paths:      paths,
	}, nil
}
