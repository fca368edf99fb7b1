package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// ErrUpdateFailed means the gateway received the image but refused to flash it.
// It will reboot with the old firmware.
var ErrUpdateFailed = errors.New("gateway: firmware update failed")

// UploadFirmware posts a firmware image as multipart form field "file".
// progress, if non-nil, is called with the fraction of size sent so far.
func (c *Client) UploadFirmware(ctx context.Context, filename string, image io.Reader, size int64, progress func(float64)) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, &progressReader{r: image, total: size, fn: progress}); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/firmware", pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Info("uploading firmware", "file", filename, "bytes", size)
	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		return fmt.Errorf("upload firmware: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload firmware: %w", &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)})
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("upload firmware: %w: %v", ErrDecode, err)
	}
	if !result.Success {
		return ErrUpdateFailed
	}
	if progress != nil {
		progress(1)
	}
	return nil
}

type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	fn    func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += int64(n)
	if p.fn != nil && p.total > 0 && n > 0 {
		frac := float64(p.sent) / float64(p.total)
		if frac > 1 {
			frac = 1
		}
		p.fn(frac)
	}
	return n, err
}
