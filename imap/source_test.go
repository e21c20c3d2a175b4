package imap

import (
	"context"
	"net"
	"sync"
	"testing"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"

	"github.com/dhcgn/mailstore-extract/model"
)

const (
	testUser = "extract"
	testPass = "secret"
)

type fakePipeline struct {
	blobs  chan model.Envelope
	once   sync.Once
	stages []func(context.Context) error
}

func (f *fakePipeline) BlobWriter() chan<- model.Envelope { return f.blobs }
func (f *fakePipeline) CloseBlobs()                       { f.once.Do(func() { close(f.blobs) }) }
func (f *fakePipeline) AddStage(_ string, fn func(context.Context) error) {
	f.stages = append(f.stages, fn)
}

// startServer serves an in-memory mailbox holding msgs in INBOX and returns
// its port.
func startServer(t *testing.T, msgs ...string) int {
	t.Helper()

	memServer := imapmemserver.New()
	user := imapmemserver.NewUser(testUser, testPass)
	if err := user.Create("INBOX", nil); err != nil {
		t.Fatalf("create INBOX: %v", err)
	}
	memServer.AddUser(user)

	server := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memServer.NewSession(), nil, nil
		},
		Caps: imapv2.CapSet{
			imapv2.CapIMAP4rev1: {},
			imapv2.CapIMAP4rev2: {},
		},
		InsecureAuth: true,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Close() })

	client, err := imapclient.DialInsecure(ln.Addr().String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if err := client.Login(testUser, testPass).Wait(); err != nil {
		t.Fatalf("login: %v", err)
	}
	for _, msg := range msgs {
		cmd := client.Append("INBOX", int64(len(msg)), nil)
		if _, err := cmd.Write([]byte(msg)); err != nil {
			t.Fatalf("append write: %v", err)
		}
		if err := cmd.Close(); err != nil {
			t.Fatalf("append close: %v", err)
		}
		if _, err := cmd.Wait(); err != nil {
			t.Fatalf("append wait: %v", err)
		}
	}

	return ln.Addr().(*net.TCPAddr).Port
}

func TestSource_FetchesKnownMailBlobs(t *testing.T) {
	msgs := []string{
		"From: a@example.com\r\nSubject: one\r\n\r\nfirst\r\n",
		"X-Custom: header first\r\nFrom: b@example.com\r\n\r\nsecond\r\n",
	}
	port := startServer(t, msgs...)

	p := &fakePipeline{blobs: make(chan model.Envelope, len(msgs))}
	src, err := NewSource(context.Background(), Options{
		Host:     "127.0.0.1",
		Port:     port,
		Username: testUser,
		Password: testPass,
	}, p, nil)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.Total() != len(msgs) || len(p.stages) != 1 {
		t.Fatalf("Total() = %d, stages = %d", src.Total(), len(p.stages))
	}

	if err := p.stages[0](context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var got []model.RawBlob
	for env := range p.blobs {
		if env.Err != nil {
			t.Fatalf("unexpected envelope error %v", env.Err)
		}
		got = append(got, env.Blob)
	}
	if len(got) != len(msgs) {
		t.Fatalf("got %d blobs, want %d", len(got), len(msgs))
	}
	for i, blob := range got {
		if !blob.KnownMail {
			t.Errorf("blob %d not marked as known mail", i)
		}
		if blob.Seq != i {
			t.Errorf("blob %d Seq = %d", i, blob.Seq)
		}
		if want := BlobPath("INBOX", imapv2.UID(i+1)); blob.RelPath != want {
			t.Errorf("blob %d RelPath = %q, want %q", i, blob.RelPath, want)
		}
		if string(blob.Data) != msgs[i] {
			t.Errorf("blob %d Data = %q, want %q", i, blob.Data, msgs[i])
		}
	}
}

func TestSource_EmptyMailbox(t *testing.T) {
	port := startServer(t)

	p := &fakePipeline{blobs: make(chan model.Envelope, 1)}
	src, err := NewSource(context.Background(), Options{
		Host:     "127.0.0.1",
		Port:     port,
		Username: testUser,
		Password: testPass,
	}, p, nil)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.Total() != 0 {
		t.Fatalf("Total() = %d, want 0", src.Total())
	}
	if err := p.stages[0](context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, ok := <-p.blobs; ok {
		t.Error("expected closed blob channel without messages")
	}
}

func TestNewSource_BadLogin(t *testing.T) {
	port := startServer(t)

	p := &fakePipeline{blobs: make(chan model.Envelope, 1)}
	_, err := NewSource(context.Background(), Options{
		Host:     "127.0.0.1",
		Port:     port,
		Username: testUser,
		Password: "wrong",
	}, p, nil)
	if err == nil {
		t.Fatal("expected login error")
	}
	if len(p.stages) != 0 {
		t.Error("stage registered despite failed login")
	}
}
