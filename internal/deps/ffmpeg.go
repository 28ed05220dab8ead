package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFmpegForYTDLP reports the FFmpeg install yt-dlp will use for
// `--extract-audio`. Audio extraction needs ffprobe as well as ffmpeg, and
// yt-dlp expects both in the same directory.
//
// Standalone yt-dlp builds look next to their own executable first, then
// resolve "ffmpeg" from PATH.
func CheckFFmpegForYTDLP(ytdlpCommand string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Used by yt-dlp to extract audio",
	}

	ffmpeg, ok := sidecarFFmpeg(strings.TrimSpace(ytdlpCommand))
	if !ok {
		path, err := exec.LookPath(toolName("ffmpeg"))
		if err != nil {
			result.Command = "ffmpeg"
			result.Detail = `binary "ffmpeg" not found`
			return result
		}
		ffmpeg = path
	}
	result.Command = ffmpeg

	probe := filepath.Join(filepath.Dir(ffmpeg), toolName("ffprobe"))
	if !isExecutableFile(probe) {
		result.Detail = fmt.Sprintf("ffprobe missing next to %s", ffmpeg)
		return result
	}
	result.Available = true
	return result
}

// sidecarFFmpeg returns the ffmpeg shipped alongside the yt-dlp binary.
func sidecarFFmpeg(ytdlpCommand string) (string, bool) {
	if ytdlpCommand == "" {
		return "", false
	}
	resolved, err := exec.LookPath(ytdlpCommand)
	if err != nil {
		return "", false
	}
	candidate := filepath.Join(filepath.Dir(resolved), toolName("ffmpeg"))
	return candidate, isExecutableFile(candidate)
}

func toolName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
