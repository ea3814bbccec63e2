package postgres

// SQL statements prepared by the adapter. Keep these in one place so the
// tests can assert against the exact text.
const (
	queryListClubMembers = `
		SELECT member_id, joined_at
		FROM club_members
		WHERE club_id = $1
		ORDER BY joined_at, member_id`

	queryListChallengeParticipants = `
		SELECT member_id, joined_at
		FROM challenge_participants
		WHERE challenge_id = $1
		ORDER BY joined_at, member_id`

	queryListActivities = `
		SELECT id, member_id, type, value, unit, recorded_at
		FROM activities
		WHERE member_id = $1
		  AND recorded_at >= $2
		  AND recorded_at < $3
		  AND ($4 = '' OR type = $4)
		ORDER BY recorded_at, id`

	queryGetParticipantProgress = `
		SELECT current_value, progress_percentage
		FROM challenge_participants
		WHERE challenge_id = $1 AND member_id = $2`

	queryGetProfileSummaries = `
		SELECT id, display_name, COALESCE(avatar_url, '')
		FROM profiles
		WHERE id = ANY($1)`

	queryListMemberClubs = `
		SELECT club_id
		FROM club_members
		WHERE member_id = $1
		ORDER BY club_id`

	queryInsertActivity = `
		INSERT INTO activities (id, member_id, type, value, unit, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	queryUpdateParticipantProgress = `
		UPDATE challenge_participants
		SET current_value = $3,
		    progress_percentage = LEAST(100, 100 * $3 / NULLIF(
		        (SELECT target_value FROM challenges WHERE id = $1), 0)),
		    updated_at = NOW()
		WHERE challenge_id = $1 AND member_id = $2`

	queryRemoveClubMember = `
		DELETE FROM club_members
		WHERE club_id = $1 AND member_id = $2`

	queryRemoveChallengeParticipant = `
		DELETE FROM challenge_participants
		WHERE challenge_id = $1 AND member_id = $2`
)
