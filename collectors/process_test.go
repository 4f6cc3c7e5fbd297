package collectors

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCgroupPath(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
		want    string
	}{
		{
			name:    "unified hierarchy only",
			content: "0::/system.slice/sshd.service\n",
			want:    "/system.slice/sshd.service",
		},
		{
			name: "hybrid hierarchy picks the v2 line",
			content: "12:cpu,cpuacct:/legacy\n" +
				"1:name=systemd:/init.scope\n" +
				"0::/user.slice/user-1000.slice\n",
			want: "/user.slice/user-1000.slice",
		},
		{
			name:    "root cgroup",
			content: "0::/\n",
			want:    "/",
		},
		{
			name:    "no v2 line",
			content: "12:cpu,cpuacct:/legacy\n",
			want:    "",
		},
		{
			name: "unreadable file",
			err:  errors.New("permission denied"),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewProcessCollector(nil)
			c.readCgroupFile = func(pid int32) ([]byte, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return []byte(tt.content), nil
			}
			if got := c.cgroupPath(1); got != tt.want {
				t.Errorf("cgroupPath = %q, want %q", got, tt.want)
			}
		})
	}
}
