/*
The sync package implements the synchronization of a project's sources onto
remote build slaves, so that they can compile the project.

The master side is a Syncer. The orchestrator submits one job per slave, and
a fixed pool of workers pushes the project tree to each slave:

1) The first job taken from the queue determines the file set. Its root is
   walked once with its include and exclude patterns, and the resulting list
   of (path, timestamp) entries is shared by every job of the session.
2) A worker splits the file set into batches and sends each batch as a
   FileBatch command. The slave replies with AllCurrent, or with SendFiles
   listing the stale files, whose raw contents the worker then sends in the
   listed order.
3) After the last batch, the worker sends EndOfFileList.

The slave side is Receive. A file is stale if it doesn't exist on the slave,
or if its timestamp differs from the master's. Timestamps are compared as UTC
strings, so hosts in different time zones agree on them. Staleness is equality
based: a slave file that is newer than the master's is replaced as well.

Only files are synchronized. Empty directories only exist on the slave if
the slave creates them itself.
*/
package sync
