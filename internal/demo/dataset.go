package demo

// fixedDataset returns the cache payloads that make a detached sandbox
// navigable: one cache type per screen the client renders. The content is
// intentionally small but covers every referenced relation (users teach
// classes, grades belong to students, attendance references timetable
// slots).
func fixedDataset() map[string]interface{} {
	return map[string]interface{}{
		"school": map[string]interface{}{
			"id":      501,
			"name":    "École Primaire Bilingue de Bastos",
			"city":    "Yaoundé",
			"country": "CM",
			"terms": []map[string]interface{}{
				{"id": 1, "name": "Trimestre 1", "start": "2026-09-01", "end": "2026-12-12"},
				{"id": 2, "name": "Trimestre 2", "start": "2027-01-05", "end": "2027-03-26"},
			},
		},
		"users": []map[string]interface{}{
			{"id": 1001, "name": "Marie Nguemo", "role": "teacher"},
			{"id": 1002, "name": "Paul Essomba", "role": "parent"},
			{"id": 1003, "name": "Aisha Essomba", "role": "student", "class_id": 21},
			{"id": 1004, "name": "Jean Mbarga", "role": "director"},
		},
		"classes": []map[string]interface{}{
			{"id": 21, "name": "CM1 A", "teacher_id": 1001, "students": []int64{1003, 1010, 1011}},
			{"id": 22, "name": "CM1 B", "teacher_id": 1001, "students": []int64{1012, 1013}},
		},
		"grades": []map[string]interface{}{
			{"id": 9001, "student_id": 1003, "class_id": 21, "subject": "Mathématiques", "score": 15.5, "max": 20, "term_id": 1},
			{"id": 9002, "student_id": 1003, "class_id": 21, "subject": "Français", "score": 13.0, "max": 20, "term_id": 1},
		},
		"attendance": []map[string]interface{}{
			{"id": 7001, "student_id": 1003, "class_id": 21, "date": "2026-09-07", "status": "present", "marked_by": 1001},
			{"id": 7002, "student_id": 1010, "class_id": 21, "date": "2026-09-07", "status": "late", "marked_by": 1001},
		},
		"homework": []map[string]interface{}{
			{"id": 8001, "class_id": 21, "subject": "Mathématiques", "title": "Fractions, exercices 1-10", "due": "2026-09-14", "assigned_by": 1001},
		},
		"timetable": []map[string]interface{}{
			{"id": 6001, "class_id": 21, "day": "monday", "start": "08:00", "end": "09:00", "subject": "Mathématiques", "teacher_id": 1001},
			{"id": 6002, "class_id": 21, "day": "monday", "start": "09:00", "end": "10:00", "subject": "Français", "teacher_id": 1001},
		},
		"notifications": []map[string]interface{}{
			{"id": 5001, "user_id": 1002, "kind": "grade", "text": "Nouvelle note publiée pour Aisha", "read": false},
			{"id": 5002, "user_id": 1001, "kind": "message", "text": "Réunion pédagogique vendredi 15h", "read": true},
		},
	}
}

// DatasetTypes lists the cache types Seed populates, in a stable order.
func DatasetTypes() []string {
	return []string{
		"school", "users", "classes", "grades",
		"attendance", "homework", "timetable", "notifications",
	}
}
