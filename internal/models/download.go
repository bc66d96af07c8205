// Package models downloads the recognition models the backends load at
// runtime: the whisper ggml file for the heavy backend and the vosk model
// directory for the light one.
package models

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	whisperModelURL  = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin"
	whisperModelName = "ggml-base.en.bin"
	voskModelURL     = "https://alphacephei.com/vosk/models/vosk-model-small-en-us-0.15.zip"
	voskModelName    = "vosk-model-small-en-us-0.15"
)

// DownloadAll fetches both models into dir, skipping anything already
// present.
func DownloadAll(dir string) error {
	if err := DownloadWhisper(dir); err != nil {
		return err
	}
	return DownloadVosk(dir)
}

// DownloadWhisper downloads the whisper ggml model into dir. It shows
// download progress on stdout.
func DownloadWhisper(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	destPath := filepath.Join(dir, whisperModelName)
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Printf("  Whisper model already exists: %s (%.0f MB)\n", destPath, float64(info.Size())/(1024*1024))
		return nil
	}

	fmt.Printf("  Downloading whisper model...\n")
	fmt.Printf("  URL: %s\n", whisperModelURL)
	fmt.Printf("  Destination: %s\n", destPath)

	if err := fetchFile(whisperModelURL, destPath, whisperModelName); err != nil {
		return err
	}

	fmt.Printf("\n  Whisper model installed.\n")
	return nil
}

// DownloadVosk downloads and unpacks the vosk model zip into dir.
func DownloadVosk(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	destDir := filepath.Join(dir, voskModelName)
	if _, err := os.Stat(destDir); err == nil {
		fmt.Printf("  Vosk model already exists: %s\n", destDir)
		return nil
	}

	fmt.Printf("  Downloading vosk model...\n")
	fmt.Printf("  URL: %s\n", voskModelURL)
	fmt.Printf("  Destination: %s\n", destDir)

	zipPath := filepath.Join(dir, voskModelName+".zip")
	if err := fetchFile(voskModelURL, zipPath, voskModelName+".zip"); err != nil {
		return err
	}
	defer os.Remove(zipPath)

	fmt.Printf("\n  Unpacking...\n")
	if err := unzip(zipPath, dir); err != nil {
		return fmt.Errorf("unpacking vosk model: %w", err)
	}

	fmt.Printf("  Vosk model installed.\n")
	return nil
}

// fetchFile downloads url to destPath via a temp file and atomic rename,
// printing progress along the way.
func fetchFile(url, destPath, label string) error {
	resp, err := http.Get(url) //nolint:gosec // URL is a compile-time constant
	if err != nil {
		return fmt.Errorf("downloading %s: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	pr := &progressWriter{
		writer: f,
		total:  resp.ContentLength,
		label:  label,
	}

	if _, err := io.Copy(pr, resp.Body); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", label, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", label, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving %s into place: %w", label, err)
	}
	return nil
}

// unzip extracts an archive into destDir, rejecting entries that would
// escape it.
func unzip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name) //nolint:gosec // checked below
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractEntry(f, target); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractEntry(f *zip.File, target string) error {
	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in) //nolint:gosec // model archives come from a pinned URL
	return err
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Printf("\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Printf("\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
