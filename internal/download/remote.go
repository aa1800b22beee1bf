package download

import (
	"context"
	"io"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
)

// Remote is the part of an FTP session used by downloads.
type Remote interface {
	NameList(dir string) ([]string, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

// Dialer opens an authenticated session.
type Dialer func(ctx context.Context) (Remote, error)

type ftpRemote struct {
	conn *ftp.ServerConn
}

func (r *ftpRemote) NameList(dir string) ([]string, error) {
	return r.conn.NameList(dir)
}

func (r *ftpRemote) Retr(path string) (io.ReadCloser, error) {
	return r.conn.Retr(path)
}

func (r *ftpRemote) Quit() error {
	return r.conn.Quit()
}

// FTPDialer returns a Dialer logging in to addr (host:port).
func FTPDialer(addr, user, password string, timeout time.Duration) Dialer {
	return func(ctx context.Context) (Remote, error) {
		opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
		if timeout > 0 {
			opts = append(opts, ftp.DialWithTimeout(timeout))
		}
		conn, err := ftp.Dial(addr, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "dial %s", addr)
		}
		if err := conn.Login(user, password); err != nil {
			conn.Quit()
			return nil, errors.Wrapf(err, "login to %s as %q", addr, user)
		}
		return &ftpRemote{conn: conn}, nil
	}
}
