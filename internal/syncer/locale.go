package syncer

// ErrorKey identifies which sync phase failed. Keys are stable and
// map to localized user-facing messages.
type ErrorKey string

const (
	KeyFailedSyncCloud   ErrorKey = "failed_sync_cloud"
	KeyFailedSoftDeletes ErrorKey = "failed_soft_deletes"
	KeyFailedSyncDeleted ErrorKey = "failed_sync_deleted"
	KeyFailedSyncNotes   ErrorKey = "failed_sync_notes"
	KeyUnknownError      ErrorKey = "unknown_error"
)

var messages = map[string]map[ErrorKey]string{
	"en": {
		KeyFailedSyncCloud:   "Failed to sync with cloud",
		KeyFailedSoftDeletes: "Failed to handle soft deletes",
		KeyFailedSyncDeleted: "Failed to sync deleted items",
		KeyFailedSyncNotes:   "Failed to sync notes",
		KeyUnknownError:      "Unknown error occurred",
	},
	"fr": {
		KeyFailedSyncCloud:   "Échec de la synchronisation avec le cloud",
		KeyFailedSoftDeletes: "Échec de la gestion des suppressions",
		KeyFailedSyncDeleted: "Échec de la synchronisation des éléments supprimés",
		KeyFailedSyncNotes:   "Échec de la synchronisation des notes",
		KeyUnknownError:      "Erreur inconnue",
	},
	"ar": {
		KeyFailedSyncCloud:   "فشل في المزامنة مع السحابة",
		KeyFailedSoftDeletes: "فشل في معالجة الحذف",
		KeyFailedSyncDeleted: "فشل في مزامنة العناصر المحذوفة",
		KeyFailedSyncNotes:   "فشل في مزامنة الملاحظات",
		KeyUnknownError:      "خطأ غير معروف",
	},
}

// LocalizedMessage returns the user-facing message for a failure key in
// the given language. Unknown languages fall back to English, unknown
// keys to the generic error message.
func LocalizedMessage(language string, key ErrorKey) string {
	table, ok := messages[language]
	if !ok {
		table = messages["en"]
	}
	if msg, ok := table[key]; ok {
		return msg
	}
	return table[KeyUnknownError]
}
