package firestore

// Document ID separator. Firestore does not allow "/" in document IDs,
// so we use "|" to combine PK and SK into a single document ID,
// mirroring the DynamoDB single-table PK|SK convention.
const sep = "|"

// PK/SK prefix constants (matching DynamoDB keys.go).
const (
	prefixSubject      = "SUBJECT#"
	prefixStudent      = "STUDENT#"
	prefixAttendance   = "ATTENDANCE#"
	prefixNotification = "NOTIFICATION#"
	prefixType         = "TYPE#"

	pkWatermark      = "CONFIG#attendance"
	skMeta           = "META"
	skGlobalStreak   = "STREAK#GLOBAL"
	skWatermark      = "WATERMARK"
	typeSubject      = prefixType + "subject"
	typeNotification = prefixType + "notification"
)

// Field names.
const (
	fieldData     = "data"
	fieldStreak   = "streak"
	fieldLastDate = "lastDate"
	fieldResolved = "resolved"
	fieldGSI1PK   = "gsi1pk"
	fieldGSI1SK   = "gsi1sk"
)

// docID constructs a Firestore document ID from PK and SK: "{PK}|{SK}".
func docID(pk, sk string) string { return pk + sep + sk }

func subjectPK(id string) string { return prefixSubject + id }
func studentPK(id string) string { return prefixStudent + id }
func studentSK(id string) string { return prefixStudent + id }

func attendancePK(date, subjectID string) string {
	return prefixAttendance + date + "#" + subjectID
}

func notificationSK(id string) string { return prefixNotification + id }
