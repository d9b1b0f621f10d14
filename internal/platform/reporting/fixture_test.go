package reporting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehr/cohort/internal/platform/db"
	"github.com/ehr/cohort/internal/platform/executor"
	"github.com/ehr/cohort/internal/platform/query"
	"github.com/ehr/cohort/internal/platform/refdata"
	"github.com/ehr/cohort/migrations"
)

const fixtureLocation = 4

var fixtureRefs = query.PlaceholderMap{
	RefARTProgram:                  2,
	RefPharmacyEncounterType:       18,
	RefARTStartConcept:             1190,
	RefNextPickupConcept:           5096,
	RefNextConsultationConcept:     1410,
	RefViralLoadConcept:            856,
	RefViralLoadQualitativeConcept: 1305,
}

// setupEvaluator loads a small clinic into an in-memory SQLite store.
//
// Patient 1 starts ART in January 2019, is due back in April and has an
// unsuppressed viral load. Patient 2 started in 2018, missed a March
// consultation and has an unsuppressed viral load. Patient 3 left the
// program in December 2018. Patient 4 is enrolled at another location.
// Patient 5 started in 2018, is due back in April and is suppressed.
func setupEvaluator(t *testing.T) (*Evaluator, executor.Executor) {
	t.Helper()
	ctx := context.Background()

	conn, err := db.OpenSQLite(ctx, db.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	_, err = db.ApplySQLite(ctx, conn, migrations.FS)
	require.NoError(t, err)

	stmts := []string{
		`INSERT INTO patient (patient_id) VALUES (1), (2), (3), (4), (5)`,
		`INSERT INTO patient_program (patient_program_id, patient_id, program_id, location_id, date_enrolled, date_completed) VALUES
			(1, 1, 2, 4, '2019-01-10 00:00:00', NULL),
			(2, 2, 2, 4, '2018-06-01 00:00:00', NULL),
			(3, 3, 2, 4, '2018-01-01 00:00:00', '2018-12-01 00:00:00'),
			(4, 4, 2, 5, '2018-09-01 00:00:00', NULL),
			(5, 5, 2, 4, '2018-10-01 00:00:00', NULL)`,
		`INSERT INTO encounter (encounter_id, patient_id, encounter_type, location_id, encounter_datetime) VALUES
			(10, 1, 18, 4, '2019-01-15 00:00:00'),
			(11, 5, 18, 4, '2018-09-25 00:00:00')`,
		`INSERT INTO obs (obs_id, patient_id, concept_id, location_id, obs_datetime, value_datetime) VALUES
			(100, 2, 1190, 4, '2018-06-01 00:00:00', '2018-05-20 00:00:00'),
			(101, 1, 5096, 4, '2019-03-20 00:00:00', '2019-04-15 00:00:00'),
			(102, 2, 1410, 4, '2019-02-01 00:00:00', '2019-03-15 00:00:00'),
			(103, 3, 5096, 4, '2019-03-01 00:00:00', '2019-05-01 00:00:00'),
			(104, 5, 5096, 4, '2019-03-10 00:00:00', '2019-04-10 00:00:00')`,
		`INSERT INTO obs (obs_id, patient_id, concept_id, location_id, obs_datetime, value_numeric, value_coded, voided) VALUES
			(110, 1, 856, 4, '2019-03-01 00:00:00', 1500, NULL, FALSE),
			(111, 2, 856, 4, '2018-12-01 00:00:00', 20, NULL, FALSE),
			(112, 2, 856, 4, '2019-02-10 00:00:00', 5000, NULL, FALSE),
			(113, 5, 856, 4, '2019-01-20 00:00:00', 40, NULL, FALSE),
			(114, 2, 1305, 4, '2019-03-28 00:00:00', NULL, 1306, FALSE),
			(115, 1, 856, 4, '2019-03-30 00:00:00', 10, NULL, TRUE)`,
	}
	for _, stmt := range stmts {
		_, err := conn.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	exec := executor.NewSQL(conn)
	return NewEvaluator(exec, refdata.NewStatic(fixtureRefs)), exec
}
