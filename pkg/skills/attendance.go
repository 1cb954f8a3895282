package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/jarvis/pkg/skill"
	"github.com/harunnryd/jarvis/pkg/svcclient"
	"github.com/harunnryd/jarvis/pkg/upload"
)

// AttendanceSkill stores, updates and downloads the attendance workbook via
// the attendance service.
type AttendanceSkill struct {
	Service   Caller
	OutputDir string
}

func (s *AttendanceSkill) Name() string { return "attendance" }

func (s *AttendanceSkill) Invoke(ctx context.Context, env skill.Env, req skill.Request) skill.Result {
	cmd := req.Command
	switch {
	case strings.Contains(cmd, "store attendance"):
		return s.withFile(ctx, env, "attendance_store", []string{".xlsx", ".xls"},
			"Please upload an Excel attendance file first.",
			"Attempting to store the attendance file.")
	case strings.Contains(cmd, "update attendance"):
		return s.withFile(ctx, env, "attendance_update", []string{".png", ".jpg", ".jpeg", ".pdf"},
			"To update attendance, please first upload an image file (PNG, JPG, JPEG) or a PDF file containing names and signatures.",
			"Attempting to update the attendance file by detecting signatures from the uploaded document.")
	case strings.Contains(cmd, "download attendance"):
		env.Speak("Attempting to download the attendance file.")
		resp, err := s.Service.Call(ctx, "attendance_download", svcclient.Request{})
		if err != nil {
			return skill.Failed(serviceFailure("attendance download", err), err)
		}
		if !resp.HasFile() {
			return skill.Failed("Failed to download attendance file.", fmt.Errorf("no file in response"))
		}
		path, err := resp.SaveCompleted(s.OutputDir)
		if err != nil {
			return skill.Failed("Failed to save the attendance file.", err)
		}
		env.Display("Saved " + path)
		return skill.Success(fmt.Sprintf("Attendance file '%s' downloaded successfully.", resp.CompletedFilename))
	default:
		return skill.UserError("I'm not sure what you mean by that attendance command. Please say 'store attendance', 'download attendance', or 'update attendance'.", "")
	}
}

func (s *AttendanceSkill) withFile(ctx context.Context, env skill.Env, feature string, exts []string, missing, start string) skill.Result {
	slot := env.Uploads()
	file, ok := slot.TakeIf(func(f upload.File) bool { return hasExt(f.Ext(), exts) })
	if !ok {
		return skill.UserError(missing, "Upload a supported file first.")
	}
	env.Speak(start)
	resp, err := s.Service.Call(ctx, feature, svcclient.Request{Filename: file.Filename, FileData: file.Base64, MimeType: file.MimeType})
	if err != nil {
		return skill.Failed(serviceFailure("attendance", err), err)
	}
	msg := resp.Message
	if msg == "" {
		msg = "Attendance updated."
	}
	return skill.Success(msg)
}

func hasExt(ext string, exts []string) bool {
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
