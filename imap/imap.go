// Package imap reads a mailbox read-only and feeds every message into the
// pipeline as a known-mail blob.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path"
	"strconv"
	"strings"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mailstore-extract/model"
)

var (
	ErrMissingHost = errors.New("imap host is empty")
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string
}

// Pipeline is the part of the runner the source writes to.
type Pipeline interface {
	BlobWriter() chan<- model.Envelope
	CloseBlobs()
	AddStage(name string, fn func(context.Context) error)
}

type Source struct {
	opts     Options
	pipeline Pipeline
	logger   *slog.Logger

	client  *imapclient.Client
	total   uint32
	cleanup func()
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Host) == "" {
		return ErrMissingHost
	}
	if o.Port <= 0 {
		return fmt.Errorf("imap port must be positive")
	}
	return nil
}

func (o Options) folder() string {
	if o.Folder == "" {
		return "INBOX"
	}
	return o.Folder
}

// BlobPath is the source path recorded for a fetched message.
func BlobPath(folder string, uid imapv2.UID) string {
	folder = strings.Trim(strings.ReplaceAll(folder, "\\", "/"), "/")
	if folder == "" {
		folder = "INBOX"
	}
	return path.Join("imap", folder, strconv.FormatUint(uint64(uid), 10)+".eml")
}

// NewSource connects, selects the folder read-only and registers a stage that
// streams its messages to p.
func NewSource(ctx context.Context, opts Options, p Pipeline, logger *slog.Logger) (*Source, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	s := &Source{opts: opts, pipeline: p, logger: logger}
	if err := s.dial(ctx); err != nil {
		return nil, err
	}
	p.AddStage("imap", s.run)
	return s, nil
}

// Total is the number of messages in the selected folder.
func (s *Source) Total() int {
	return int(s.total)
}

func (s *Source) dial(ctx context.Context) error {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}

	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)
	if s.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("imap login failed: %w", err)
	}

	data, err := client.Select(s.opts.folder(), &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("select mailbox %s: %w", s.opts.folder(), err)
	}

	if s.logger != nil {
		s.logger.Info("imap mailbox selected", "address", address, "user", s.opts.Username, "mailbox", s.opts.folder(), "messages", data.NumMessages, "tls", s.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	s.client = client
	s.total = data.NumMessages
	s.cleanup = func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil && s.logger != nil {
				s.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil && s.logger != nil {
			s.logger.Debug("imap connection closed", "err", err)
		}
	}
	return nil
}

func (s *Source) run(ctx context.Context) error {
	defer s.pipeline.CloseBlobs()
	defer s.cleanup()

	if s.total == 0 {
		return nil
	}

	var seqSet imapv2.SeqSet
	seqSet.AddRange(1, s.total)
	section := &imapv2.FetchItemBodySection{Peek: true}
	cmd := s.client.Fetch(seqSet, &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})

	out := s.pipeline.BlobWriter()
	folder := s.opts.folder()
	seq := 0
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()

		env := model.Envelope{Blob: model.RawBlob{KnownMail: true, Seq: seq}}
		if err != nil {
			env.Blob.RelPath = BlobPath(folder, imapv2.UID(0))
			env.Err = fmt.Errorf("fetch message %d: %w", seq+1, err)
		} else {
			env.Blob.RelPath = BlobPath(folder, buf.UID)
			env.Blob.Data = buf.FindBodySection(section)
			if env.Blob.Data == nil {
				env.Err = fmt.Errorf("fetch message uid %d: empty body", buf.UID)
			}
		}
		seq++

		select {
		case <-ctx.Done():
			_ = cmd.Close()
			return ctx.Err()
		case out <- env:
		}
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("fetch %s: %w", folder, err)
	}
	if s.logger != nil {
		s.logger.Debug("imap fetch finished", "mailbox", folder, "messages", seq)
	}
	return nil
}
