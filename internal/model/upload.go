package model

// UploadRequest is the body of POST /api/upload. A request carrying
// fileContent is a PDF upload, otherwise it is a TEXT upload.
type UploadRequest struct {
	FileContent string `json:"fileContent"`
	FileName    string `json:"fileName"`
	Language    string `json:"language"`
	StartPage   int    `json:"startPage"`
	EndPage     int    `json:"endPage"`
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id"`
}

func (r *UploadRequest) IsPDF() bool {
	return r.FileContent != ""
}

// PDFUpload is the validated shape of a PDF upload.
type PDFUpload struct {
	FileContent string `json:"fileContent" validate:"required,base64"`
	FileName    string `json:"fileName" validate:"required,max=255"`
	Language    string `json:"language" validate:"omitempty,max=32"`
	StartPage   int    `json:"startPage" validate:"required,min=1"`
	EndPage     int    `json:"endPage" validate:"required,gtefield=StartPage"`
}

// TextUpload is the validated shape of a TEXT upload.
type TextUpload struct {
	Text     string `json:"text" validate:"required"`
	Language string `json:"language" validate:"omitempty,max=32"`
	VoiceID  string `json:"voice_id" validate:"omitempty,alphanum,max=32"`
}

func (r *UploadRequest) PDF() PDFUpload {
	return PDFUpload{
		FileContent: r.FileContent,
		FileName:    r.FileName,
		Language:    r.Language,
		StartPage:   r.StartPage,
		EndPage:     r.EndPage,
	}
}

func (r *UploadRequest) TextInput() TextUpload {
	return TextUpload{
		Text:     r.Text,
		Language: r.Language,
		VoiceID:  r.VoiceID,
	}
}

type UploadResponse struct {
	Message      string `json:"message"`
	ReferenceKey string `json:"reference_key"`
}
