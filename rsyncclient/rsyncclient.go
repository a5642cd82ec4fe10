// Package rsyncclient implements the client side of a transfer session
// over an already-connected transport: a TCP connection to a daemon
// socket, or the stdin/stdout pipes of an already-spawned remote-shell
// "--server" subprocess. Spawning that subprocess (ssh, or any other
// remote shell) is explicitly outside this package's scope, matching
// the engine's process-spawning non-goal; Client only ever reads and
// writes the io.ReadWriter it is handed.
//
// Grounded on the teacher's rsyncd.go daemon dance for the wire
// sequence (mirrored from the client's side of the same conversation)
// and on internal/negotiate/internal/handshake for dialect detection
// and the version/compat-flags/checksum-seed exchange.
package rsyncclient

import (
	"fmt"
	"io"
	"os/user"
	"strconv"
	"strings"

	"github.com/oferchen/rsync-sub007/generator"
	"github.com/oferchen/rsync-sub007/internal/compress"
	"github.com/oferchen/rsync-sub007/internal/digest"
	"github.com/oferchen/rsync-sub007/internal/handshake"
	"github.com/oferchen/rsync-sub007/internal/negotiate"
	"github.com/oferchen/rsync-sub007/internal/rsyncos"
	"github.com/oferchen/rsync-sub007/internal/rsyncstats"
	"github.com/oferchen/rsync-sub007/internal/rsyncversion"
	"github.com/oferchen/rsync-sub007/internal/rsyncwire"
	"github.com/oferchen/rsync-sub007/receiver"
)

// Role says which side of the transfer the local process plays. A
// downloading client receives files (the remote plays the generator/
// sender role); an uploading client sends them (the remote plays the
// receiver role). This is the client-side mirror of rsyncd's
// req.isSender dispatch.
type Role int

const (
	RoleDownload Role = iota
	RoleUpload
)

// defaultChecksumPrefs mirrors rsyncd's; in client mode this list only
// matters as the "theirs" side of the daemon's tie-break, since the
// server's preference order always wins (handshake.firstMutual).
var defaultChecksumPrefs = []digest.Algorithm{digest.MD5, digest.SHA1, digest.MD4}

// defaultCompressionPrefs mirrors rsyncd's; the negotiation itself
// resolves ties in server order regardless of which side lists them.
var defaultCompressionPrefs = []compress.Algorithm{compress.Zstd, compress.Zlib, compress.Lz4}

// Config describes one transfer request.
type Config struct {
	// Module is the daemon module name to request. Empty means "list
	// modules" when talking to a legacy daemon, and is ignored
	// entirely in the binary remote-shell dialect (the remote
	// process's role was already fixed when it was spawned).
	Module string

	// Paths are the module-relative (daemon dialect) or literal
	// (shell dialect) source/destination paths to request.
	Paths []string

	Role       Role
	NumericIDs bool
	Verbose    bool

	// DestRoot is the local filesystem root a RoleDownload writes
	// into; unused for RoleUpload.
	DestRoot string

	MaxProtocol rsyncversion.ProtocolVersion
	Env         *rsyncos.Env
}

// Client drives one transfer session over conn.
type Client struct {
	conn io.ReadWriter
	cfg  Config
}

// New returns a Client ready to Run a session described by cfg over
// conn.
func New(conn io.ReadWriter, cfg Config) *Client {
	if cfg.MaxProtocol == 0 {
		cfg.MaxProtocol = rsyncversion.Newest
	}
	if cfg.Env == nil {
		cfg.Env = rsyncos.New(nil, nil, nil)
	}
	cfg.Env.Verbose = cfg.Verbose
	return &Client{conn: conn, cfg: cfg}
}

// ErrModuleListing is returned by Run when the daemon was asked to list
// its modules (an empty Config.Module) rather than run a transfer;
// Listing carries the raw "name\tcomment" lines the daemon sent.
type ErrModuleListing struct {
	Listing []string
}

func (e *ErrModuleListing) Error() string {
	return fmt.Sprintf("rsyncclient: module listing returned (%d modules)", len(e.Listing))
}

// Run classifies the transport's dialect via the negotiation prologue,
// completes the matching handshake, and dispatches into the generator
// or receiver role per cfg.Role.
func (c *Client) Run() (rsyncstats.TransferStats, error) {
	sniffer := negotiate.NewSniffer(c.conn)
	dialect, err := sniffer.Sniff()
	if err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: sniffing dialect: %w", err)
	}
	stream := negotiate.NewStream(c.conn, sniffer.Prologue().Buffered())

	switch dialect {
	case negotiate.DialectLegacyComplete:
		return c.runLegacy(stream)
	case negotiate.DialectBinary:
		if c.cfg.Module != "" {
			return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: module %q requested but peer spoke the binary dialect", c.cfg.Module)
		}
		return c.runBinary(stream)
	default:
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: undecided dialect")
	}
}

// runLegacy drives the "@RSYNCD:" greeting/module dance from the
// client's side, the mirror image of rsyncd.HandleConn.
func (c *Client) runLegacy(stream *negotiate.Stream) (rsyncstats.TransferStats, error) {
	greetingLine, err := readLine(stream)
	if err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: reading server greeting: %w", err)
	}
	greeting, err := handshake.ParseLegacyGreeting(greetingLine)
	if err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: parsing server greeting: %w", err)
	}
	negotiated, err := rsyncversion.Clamp(greeting.Major)
	if err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: %w", err)
	}
	if negotiated > c.cfg.MaxProtocol {
		negotiated = c.cfg.MaxProtocol
	}

	if _, err := fmt.Fprintf(stream, "%s %d\n", handshake.LegacyGreetingPrefix, negotiated.Int()); err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: writing greeting reply: %w", err)
	}

	moduleRequest := c.cfg.Module
	if moduleRequest == "" {
		moduleRequest = "#list"
	}
	if _, err := fmt.Fprintf(stream, "%s\n", moduleRequest); err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: requesting module: %w", err)
	}

	var listing []string
	for {
		line, err := readLine(stream)
		if err != nil {
			return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: reading module response: %w", err)
		}
		switch {
		case line == handshake.LegacyGreetingPrefix+" OK":
			return c.afterModuleOK(stream, negotiated)
		case line == handshake.LegacyGreetingPrefix+" EXIT":
			return rsyncstats.TransferStats{}, &ErrModuleListing{Listing: listing}
		case strings.HasPrefix(line, "@ERROR"):
			return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: %s", line)
		default:
			listing = append(listing, line)
		}
	}
}

// afterModuleOK sends the "--server"-style flag lines and runs the
// shared post-greeting setup and role dispatch.
func (c *Client) afterModuleOK(stream *negotiate.Stream, negotiated rsyncversion.ProtocolVersion) (rsyncstats.TransferStats, error) {
	for _, flag := range c.serverFlags() {
		if _, err := fmt.Fprintf(stream, "%s\n", flag); err != nil {
			return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: writing flag %q: %w", flag, err)
		}
	}
	if _, err := fmt.Fprintf(stream, ".\n"); err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: writing arg separator: %w", err)
	}
	for _, p := range c.cfg.Paths {
		if _, err := fmt.Fprintf(stream, "%s\n", p); err != nil {
			return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: writing path %q: %w", p, err)
		}
	}
	if _, err := fmt.Fprintf(stream, "\n"); err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: writing arg terminator: %w", err)
	}

	res, err := handshake.Setup(stream, handshake.Config{
		Role:             handshake.RoleClient,
		Mode:             handshake.ModeLegacyDaemon,
		MaxProtocol:      c.cfg.MaxProtocol,
		ChecksumPrefs:    defaultChecksumPrefs,
		WantCompression:  true,
		CompressionPrefs: defaultCompressionPrefs,
	}, negotiated)
	if err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: handshake setup: %w", err)
	}

	return c.dispatch(stream, res)
}

// serverFlags renders the bundled "--server" flag lines real rsync
// clients send, for just the flags this engine acts on (spec's CLI
// non-goal covers everything else a full client would also send).
func (c *Client) serverFlags() []string {
	flags := []string{"--server"}
	if c.cfg.Role == RoleDownload {
		flags = append(flags, "--sender")
	}
	if c.cfg.NumericIDs {
		flags = append(flags, "--numeric-ids")
	}
	if c.cfg.Verbose {
		flags = append(flags, "-v")
	}
	return flags
}

// runBinary drives the binary remote-shell dialect: no module dance,
// just the version exchange and shared setup.
func (c *Client) runBinary(stream *negotiate.Stream) (rsyncstats.TransferStats, error) {
	negotiated, err := handshake.Binary(stream, c.cfg.MaxProtocol)
	if err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: binary version exchange: %w", err)
	}

	res, err := handshake.Setup(stream, handshake.Config{
		Role:             handshake.RoleClient,
		Mode:             handshake.ModeBinary,
		MaxProtocol:      c.cfg.MaxProtocol,
		ChecksumPrefs:    defaultChecksumPrefs,
		WantCompression:  true,
		CompressionPrefs: defaultCompressionPrefs,
	}, negotiated)
	if err != nil {
		return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: handshake setup: %w", err)
	}

	return c.dispatch(stream, res)
}

// dispatch plays the generator or receiver role against rw per
// cfg.Role, mirroring rsyncd's runSender/runReceiver. Multiplexing
// direction again follows the sender/generator role, not client/server
// identity: a downloading client is the receiver, so its requests are
// plain and its reads demultiplexed; an uploading client is the
// generator, so its responses are multiplexed and its reads plain.
func (c *Client) dispatch(rw io.ReadWriter, res handshake.Result) (rsyncstats.TransferStats, error) {
	switch c.cfg.Role {
	case RoleDownload:
		mux := rsyncwire.NewReader(rw, nil)
		var dataIn io.Reader = mux
		if alg := compressionAlgorithm(res); alg != compress.None {
			r, err := compress.NewReader(alg, mux)
			if err != nil {
				return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: building %s decompressor: %w", alg, err)
			}
			dataIn = r
		}

		fl, _, _, err := receiver.RecvFileList(dataIn, res.CompatFlags, res.Protocol.Int(), c.cfg.NumericIDs, c.cfg.DestRoot)
		if err != nil {
			return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: receiving file list: %w", err)
		}
		rv := receiver.New(receiver.Config{
			Protocol:     res.Protocol,
			CompatFlags:  res.CompatFlags,
			ChecksumAlg:  checksumAlgorithm(res),
			ChecksumSeed: res.ChecksumSeed,
			DestRoot:     c.cfg.DestRoot,
			Env:          c.cfg.Env,
		})
		return rv.Run(dataIn, mux, rw, fl)

	default: // RoleUpload
		fl, err := generator.BuildFileList(c.cfg.Paths, true)
		if err != nil {
			return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: building file list: %w", err)
		}
		uids, gids := generator.CollectIDLists(fl, c.cfg.NumericIDs, resolveUserName, resolveGroupName)

		rawOut := rsyncwire.NewWriter(rw)
		dataOut := rsyncwire.NewDataWriter(rawOut)

		var compressedOut io.Writer = dataOut
		if alg := compressionAlgorithm(res); alg != compress.None {
			fw, err := compress.NewFlushingWriter(alg, dataOut)
			if err != nil {
				return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: building %s compressor: %w", alg, err)
			}
			defer fw.Close()
			compressedOut = fw
		}

		if err := generator.SendFileList(compressedOut, fl, res.CompatFlags, res.Protocol.Int(), uids, gids, c.cfg.NumericIDs); err != nil {
			return rsyncstats.TransferStats{}, fmt.Errorf("rsyncclient: sending file list: %w", err)
		}
		gen := generator.New(generator.Config{
			Protocol:     res.Protocol,
			CompatFlags:  res.CompatFlags,
			ChecksumAlg:  checksumAlgorithm(res),
			ChecksumSeed: res.ChecksumSeed,
			NumericIDs:   c.cfg.NumericIDs,
			Env:          c.cfg.Env,
		})
		return gen.Run(rw, compressedOut, rawOut, fl)
	}
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

// readLine reads one newline-terminated line from r (CRLF-tolerant),
// a byte at a time since r is not necessarily a *bufio.Reader: the
// legacy greeting dance only ever reads a handful of short lines, so
// the lack of buffering costs nothing in practice.
func readLine(r io.Reader) (string, error) {
	var line []byte
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				return strings.TrimSuffix(string(line), "\r"), nil
			}
			line = append(line, b[0])
			continue
		}
		if err != nil {
			return "", err
		}
	}
}
