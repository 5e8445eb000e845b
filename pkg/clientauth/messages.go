package clientauth

// User-facing messages. The product UI is Turkish.
const (
	MessageOAuthCanceled = "OAuth girişi iptal edildi"
	MessageOAuthFailed   = "OAuth girişi başarısız oldu"
	MessageLoginFailed   = "Giriş yapılamadı, lütfen tekrar giriş yapmayı deneyin"
	MessageUserNotFound  = "Bu e-posta adresiyle bir kullanıcı bulunamadı"
	MessageUnknownError  = "Beklenmeyen bir hata oluştu"
	MessageConnectivity  = "Sunucuya bağlanılamadı, lütfen internet bağlantınızı kontrol edin"
	MessageMagicLink     = "Sihirli bağlantı ile giriş yapıldı"
	MessageConfirmed     = "E-posta adresiniz doğrulandı"
)

var errorMessages = map[string]string{
	"oauth_canceled": MessageOAuthCanceled,
	"oauth_failed":   MessageOAuthFailed,
	"login_failed":   MessageLoginFailed,
	"user_not_found": MessageUserNotFound,
}

// Message maps a redirect error code to its localized message
func Message(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return MessageUnknownError
}

// Marker is a one-shot flag handed to the next page
type Marker string

const (
	MarkerNone      Marker = ""
	MarkerMagicLink Marker = "magic_link_success"
	MarkerConfirmed Marker = "email_confirmed"
)

// MarkerMessage returns the toast shown for a marker, "" for none
func MarkerMessage(m Marker) string {
	switch m {
	case MarkerMagicLink:
		return MessageMagicLink
	case MarkerConfirmed:
		return MessageConfirmed
	}
	return ""
}
