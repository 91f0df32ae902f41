package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"storyweaver/harvester/internal/domain"
	"storyweaver/harvester/internal/fsutil"

	log "github.com/sirupsen/logrus"
)

const headSize = 64

var (
	zipMagic = []byte("PK")
	pdfMagic = []byte("%PDF")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindArchive
	KindDocument
)

// Downloader fetches a binary asset
type Downloader interface {
	Download(ctx context.Context, href string) ([]byte, error)
}

type Options struct {
	ScratchDir      string // Empty means the OS temp dir
	AssetDir        string
	ContentDir      string
	MinPayloadBytes int64
	MinContentBytes int64
	MaxMemberBytes  int64
}

// Result tells which deliverables were written. Either may legitimately be missing.
type Result struct {
	Asset       bool
	Content     bool
	AssetPath   string
	ContentPath string
}

type Fetcher struct {
	downloader Downloader
	opts       Options
}

func NewFetcher(downloader Downloader, opts Options) *Fetcher {
	return &Fetcher{downloader: downloader, opts: opts}
}

// Sniff validates the payload size and signature
func Sniff(payload []byte, minBytes int64) (Kind, error) {
	if int64(len(payload)) < minBytes {
		return KindUnknown, fmt.Errorf("%w: payload of %d bytes is below %d", domain.ErrMalformed, len(payload), minBytes)
	}
	switch {
	case bytes.HasPrefix(payload, zipMagic):
		return KindArchive, nil
	case bytes.HasPrefix(payload, pdfMagic):
		return KindDocument, nil
	default:
		n := min(len(payload), 4)
		return KindUnknown, fmt.Errorf("%w: unrecognized signature %q", domain.ErrMalformed, payload[:n])
	}
}

func (f *Fetcher) FetchAndExtract(ctx context.Context, href, slug string) (Result, error) {
	payload, err := f.downloader.Download(ctx, href)
	if err != nil {
		return Result{}, err
	}
	return f.Unpack(payload, slug)
}

// Unpack stores the deliverables of an already downloaded payload under slug
func (f *Fetcher) Unpack(payload []byte, slug string) (Result, error) {
	logger := log.WithField("slug", slug)

	kind, err := Sniff(payload, f.opts.MinPayloadBytes)
	if err != nil {
		logger.Warnf("⚠️ Rejected payload: %v", err)
		return Result{}, err
	}

	if kind == KindDocument {
		assetPath := f.assetPath(slug)
		if err := fsutil.WriteBytes(assetPath, payload); err != nil {
			return Result{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
		}
		logger.Infof("📄 Saved raw document (%d bytes)", len(payload))
		return Result{Asset: true, AssetPath: assetPath}, nil
	}

	return f.extract(payload, slug)
}

func (f *Fetcher) assetPath(slug string) string {
	return filepath.Join(f.opts.AssetDir, slug+".pdf")
}

func (f *Fetcher) contentPath(slug string) string {
	return filepath.Join(f.opts.ContentDir, slug+".txt")
}

// extract works inside a scratch directory that is removed on every return path
func (f *Fetcher) extract(payload []byte, slug string) (Result, error) {
	logger := log.WithField("slug", slug)

	if f.opts.ScratchDir != "" {
		if err := os.MkdirAll(f.opts.ScratchDir, 0o755); err != nil {
			return Result{}, fmt.Errorf("%w: scratch dir: %v", domain.ErrExtractionFailed, err)
		}
	}
	scratch, err := os.MkdirTemp(f.opts.ScratchDir, "harvest-*")
	if err != nil {
		return Result{}, fmt.Errorf("%w: scratch dir: %v", domain.ErrExtractionFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Errorf("❌ Failed to remove scratch dir %s: %v", scratch, err)
		}
	}()

	archivePath := filepath.Join(scratch, "payload.zip")
	if err := os.WriteFile(archivePath, payload, 0o600); err != nil {
		return Result{}, fmt.Errorf("%w: write scratch archive: %v", domain.ErrExtractionFailed, err)
	}

	membersDir := filepath.Join(scratch, "members")
	if err := f.unzip(archivePath, membersDir); err != nil {
		logger.Warnf("⚠️ Extraction failed: %v", err)
		return Result{}, err
	}

	members, err := listMembers(membersDir)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	var res Result
	if asset, ok := SelectAsset(members); ok {
		res.AssetPath = f.assetPath(slug)
		if err := fsutil.CopyFile(asset.Path, res.AssetPath); err != nil {
			return Result{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
		}
		res.Asset = true
	}
	if content, ok := SelectContent(members, f.opts.MinContentBytes); ok {
		res.ContentPath = f.contentPath(slug)
		if err := fsutil.CopyFile(content.Path, res.ContentPath); err != nil {
			return Result{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
		}
		res.Content = true
		logger.Debugf("Selected %s (%d bytes) as content", content.Name, content.Size)
	}

	logger.Infof("📦 Extracted %d members (asset=%v, content=%v)", len(members), res.Asset, res.Content)
	return res, nil
}

func (f *Fetcher) unzip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if zr != nil {
		// Insecure member paths come back together with an open reader
		defer zr.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	for _, file := range zr.File {
		name := filepath.FromSlash(file.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("%w: member %q escapes the archive", domain.ErrExtractionFailed, file.Name)
		}
		if file.FileInfo().IsDir() {
			continue
		}
		if f.opts.MaxMemberBytes > 0 && file.UncompressedSize64 > uint64(f.opts.MaxMemberBytes) {
			return fmt.Errorf("%w: member %q is too large (%d bytes)", domain.ErrExtractionFailed, file.Name, file.UncompressedSize64)
		}
		if err := f.extractMember(file, filepath.Join(dest, name)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) extractMember(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", domain.ErrExtractionFailed, file.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	return copyMember(out, rc, file.Name, f.opts.MaxMemberBytes)
}

// copyMember drains src into out and closes out. A zero limit means uncapped.
func copyMember(out io.WriteCloser, src io.Reader, name string, limit int64) error {
	var lr *io.LimitedReader
	if limit > 0 {
		// Headers can lie about the size
		lr = &io.LimitedReader{R: src, N: limit + 1}
		src = lr
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: read %q: %v", domain.ErrExtractionFailed, name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: write %q: %v", domain.ErrExtractionFailed, name, err)
	}
	if lr != nil && lr.N <= 0 {
		return fmt.Errorf("%w: member %q exceeds %d bytes", domain.ErrExtractionFailed, name, limit)
	}
	return nil
}

func listMembers(root string) ([]Member, error) {
	var members []Member
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		head, err := readHead(path)
		if err != nil {
			return err
		}
		members = append(members, Member{Path: path, Name: rel, Size: info.Size(), Head: head})
		return nil
	})
	return members, err
}

func readHead(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, headSize)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
