// Package nats provides the republish sink. Matched records leave the run as
// envelope messages on NATS subjects, where a live subscription source (or any
// envelope-aware consumer) can pick them up again.
//
// The subject for a record derives from its topic: the leading slash is
// dropped and the remaining slashes become dots, so "/robot/pose" publishes on
// "robot.pose". subjectPrefix and subjectSuffix wrap the derived name, and
// fixedSubject routes every record to one subject regardless of topic.
//
// A schema envelope is published once per type variant per subject before the
// variant's first message, so downstream sources learn field definitions the
// same way they would from a bag file. commitInterval sets how many records
// are published between connection flushes; the default of one confirms every
// record with the server before the next write.
package nats
